package telegram

import (
	"errors"
	"strings"

	"physics-tutor/api/internal/llm"
)

// handleEngineCommand shows or switches the chat's text engine.
//
//	/engine
//	/engine groq [model]
//	/engine gemini [model]
//	/engine gpt [model]
//	/engine deepseek [model]
func (r *Router) handleEngineCommand(chatID int64, argLine string) {
	available := strings.Join(r.Engines.Names(), " | ")
	args := strings.Fields(argLine)
	if len(args) == 0 {
		cur := r.EngManager.Get(chatID)
		label := "none"
		if cur != nil {
			label = cur.Name() + " (" + cur.GetModel() + ")"
		}
		r.send(chatID, "Current engine: "+label+"\nUsage: /engine {"+available+"} [model]")
		return
	}

	eng, err := r.Engines.GetEngine(args[0])
	if errors.Is(err, llm.ErrUnknownEngine) {
		r.send(chatID, "Unknown or unconfigured engine. Available: "+available)
		return
	}
	if len(args) > 1 {
		if ms, ok := eng.(llm.ModelSetter); ok {
			ms.SetModel(strings.TrimSpace(args[1]))
		} else {
			r.send(chatID, "⚠️ "+eng.Name()+" does not support switching models.")
		}
	}
	r.EngManager.Set(chatID, eng)
	r.log().Info("engine switched", "chat_id", chatID, "engine", eng.Name(), "model", eng.GetModel())
	r.send(chatID, "✅ Engine: "+eng.Name()+" ("+eng.GetModel()+").")
}
