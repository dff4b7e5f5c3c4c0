package webapp

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"physics-tutor/api/internal/tutor"
)

type page struct {
	State          string
	Engine         string
	AwaitingAnswer bool
	FollowUp       string
	Explanation    string
	Display        tutor.Display
}

// GET /
func (app *WebApp) indexPage(c *gin.Context) {
	id := app.sessionID(c)
	s := app.sessions.Get(id)

	var d tutor.Display
	if v, ok := app.last.LoadAndDelete(id); ok {
		d = v.(tutor.Display)
	}
	explanation := d.Explanation
	if explanation == "" && s.CurrentState() == tutor.AwaitingAnswer {
		explanation = s.TeacherResponse
	}
	c.HTML(http.StatusOK, "index.tmpl", page{
		State:          s.CurrentState().String(),
		Engine:         app.tutor.EngineName(),
		AwaitingAnswer: s.CurrentState() == tutor.AwaitingAnswer,
		FollowUp:       s.FollowUpQuestion,
		Explanation:    explanation,
		Display:        d,
	})
}

// POST /question
func (app *WebApp) postQuestion(c *gin.Context) {
	id := app.sessionID(c)
	_, d := app.run(c, id, app.tutor.Ask, c.PostForm("question"))
	app.last.Store(id, d)
	c.Redirect(http.StatusSeeOther, "/")
}

// POST /answer
func (app *WebApp) postAnswer(c *gin.Context) {
	id := app.sessionID(c)
	_, d := app.run(c, id, app.tutor.Answer, c.PostForm("answer"))
	app.last.Store(id, d)
	c.Redirect(http.StatusSeeOther, "/")
}

// POST /reset
func (app *WebApp) postReset(c *gin.Context) {
	id := app.sessionID(c)
	app.reset(id)
	app.last.Delete(id)
	c.Redirect(http.StatusSeeOther, "/")
}

// POST /end
func (app *WebApp) postEnd(c *gin.Context) {
	app.end(app.sessionID(c))
	c.Redirect(http.StatusSeeOther, "/")
}

type textRequest struct {
	Text string `json:"text"`
}

type stateResponse struct {
	State            tutor.TurnState `json:"state"`
	FollowUpQuestion string          `json:"follow_up_question,omitempty"`
	TeacherResponse  string          `json:"teacher_response,omitempty"`
	Question         string          `json:"question,omitempty"`
	Memory           []tutor.Message `json:"memory,omitempty"`
	Display          *tutor.Display  `json:"display,omitempty"`
}

func toResponse(s tutor.Session, d *tutor.Display) stateResponse {
	return stateResponse{
		State:            s.CurrentState(),
		FollowUpQuestion: s.FollowUpQuestion,
		TeacherResponse:  s.TeacherResponse,
		Question:         s.Question,
		Memory:           s.Memory,
		Display:          d,
	}
}

// statusFor maps a Display outcome to an HTTP status: validation 422, provider 502.
func statusFor(d tutor.Display) int {
	switch {
	case d.Err == nil:
		return http.StatusOK
	case tutor.IsValidation(d.Err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// GET /api/state
func (app *WebApp) apiState(c *gin.Context) {
	c.JSON(http.StatusOK, toResponse(app.sessions.Get(app.sessionID(c)), nil))
}

// POST /api/question
func (app *WebApp) apiQuestion(c *gin.Context) { app.apiTurn(c, app.tutor.Ask) }

// POST /api/answer
func (app *WebApp) apiAnswer(c *gin.Context) { app.apiTurn(c, app.tutor.Answer) }

func (app *WebApp) apiTurn(c *gin.Context, fn interaction) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	id := app.sessionID(c)
	s, d := app.run(c, id, fn, strings.TrimSpace(req.Text))
	c.JSON(statusFor(d), toResponse(s, &d))
}

// POST /api/reset
func (app *WebApp) apiReset(c *gin.Context) {
	c.JSON(http.StatusOK, toResponse(app.reset(app.sessionID(c)), nil))
}

// POST /api/end
func (app *WebApp) apiEnd(c *gin.Context) {
	app.end(app.sessionID(c))
	c.JSON(http.StatusOK, toResponse(tutor.NewSession(), nil))
}
