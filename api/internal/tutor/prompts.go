package tutor

import (
	"fmt"
	"strings"
)

const explanationTemplate = `You are a physics teacher helping a student understand physics concepts.

For the student's question, respond with:
1. Explanation: a clear and concise explanation of the concept.
2. Analogy: a real-world analogy or example.
3. Diagram: a simple diagram or image description that could help visualize the concept.
4. Misconceptions: common misconceptions or mistakes students make.
5. Follow-up Question: one question that checks the student's understanding.

Write item 5 on a single line that starts with "Follow-up Question:".

Question: %s`

const followUpTemplate = `A student asked a physics teacher: %q

Ask the student exactly one concrete follow-up question, set in a real-world situation,
that checks whether they understood this concept. Do not explain anything and do not
greet the student. Reply with the question only.`

const evaluationTemplate = `You are a physics teacher checking a student's answer.

Question you asked: %s
Student's answer: %s

Respond with:
1. Evaluation: is the answer correct, partially correct or incorrect, and why.
2. Correct answer: the correct answer with a short explanation.
3. Tip: one sentence of encouragement and one concrete way to improve.`

func ExplanationPrompt(question string) string {
	return fmt.Sprintf(explanationTemplate, strings.TrimSpace(question))
}

func FollowUpPrompt(question string) string {
	return fmt.Sprintf(followUpTemplate, strings.TrimSpace(question))
}

func EvaluationPrompt(followUp, answer string) string {
	return fmt.Sprintf(evaluationTemplate, strings.TrimSpace(followUp), strings.TrimSpace(answer))
}

const defaultDiagramPrefix = "Physics diagram illustrating: "

// DiagramPrompt picks the image prompt for a turn: the reply's diagram description when
// there is a usable one, else the default prefix plus the student question.
func DiagramPrompt(reply, question string) string {
	if desc, ok := findMarkedLine(reply, []string{"Diagram"}, true); ok && plausible(desc) {
		return "Simple labeled physics diagram: " + desc
	}
	return defaultDiagramPrefix + strings.TrimSpace(question)
}
