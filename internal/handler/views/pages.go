package views

import (
	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/model"
)

// InstructionsPage explains the task. The second bullet depends on the condition.
func InstructionsPage(cond model.Condition, photos bool) templ.Component {
	return layout(func(p *page) {
		p.raw("<h1>")
		p.t("Instructions")
		p.raw("</h1><ul><li>")
		p.t("InstructionsIntro")
		p.raw("</li><li>")
		if cond == model.ConditionEmotion {
			p.t("InstructionsEmotion")
		} else {
			p.t("InstructionsExplain")
		}
		p.raw("</li>")
		if photos {
			p.raw("<li>")
			p.t("InstructionsPhotos")
			p.raw("</li>")
		}
		p.raw("</ul>")
		p.form("/start")
		p.raw(`<button type="submit">`)
		p.t("StartQuiz")
		p.raw("</button></form>")
	})
}

// Statement is everything the statement page needs.
type Statement struct {
	N            int // 1-based
	Total        int
	Text         string
	Condition    model.Condition
	ShowPhoto    bool // photo flagged and present in the library
	Answer       model.Answer
	ResponseText string
	Incomplete   bool
}

// StatementPage shows one stimulus with the answer form.
func StatementPage(s Statement) templ.Component {
	return layout(func(p *page) {
		p.raw("<h1>")
		p.text(appI18n.Td(p.ctx, "StatementNofM", map[string]any{"N": s.N, "Total": s.Total}))
		p.raw("</h1>")
		if s.ShowPhoto {
			// Position in the query keeps browsers from reusing the previous image.
			p.printf(`<img class="stimulus" src="%s?n=%d" alt="">`, p.url("/photo"), s.N)
		}
		p.raw(`<p class="statement">`)
		p.text(s.Text)
		p.raw("</p>")
		if s.Incomplete {
			p.raw(`<p class="warning" role="alert">`)
			p.t("IncompleteWarning")
			p.raw("</p>")
		}

		p.form("/answer")
		p.printf(`<input type="hidden" name="position" value="%d">`, s.N-1)
		p.raw("<fieldset><legend>")
		p.t("QuestionLabel")
		p.raw("</legend>")
		selected := s.Answer
		if selected != model.AnswerTrue && selected != model.AnswerFalse {
			selected = model.AnswerUnset
		}
		for _, a := range model.AnswerChoices {
			checked := ""
			if a == selected {
				checked = " checked"
			}
			p.printf(`<label class="choice"><input type="radio" name="answer" value="%s"%s> `,
				templ.EscapeString(string(a)), checked)
			p.t(answerMsgID(a))
			p.raw("</label>")
		}
		p.raw("</fieldset>")

		prompt := "PromptExplain"
		if s.Condition == model.ConditionEmotion {
			prompt = "PromptEmotion"
		}
		p.raw(`<p><label for="response_text">`)
		p.t(prompt)
		p.raw(`</label></p><textarea id="response_text" name="response_text">`)
		p.text(s.ResponseText)
		p.raw(`</textarea><p><button type="submit">`)
		p.t("SubmitContinue")
		p.raw("</button></p></form>")
	})
}

func answerMsgID(a model.Answer) string {
	switch a {
	case model.AnswerTrue:
		return "AnswerTrue"
	case model.AnswerFalse:
		return "AnswerFalse"
	default:
		return "AnswerUnset"
	}
}

var debriefParagraphs = []string{
	"DebriefThanks",
	"DebriefPurpose",
	"DebriefStimuli",
	"DebriefGoal",
	"DebriefAnonymous",
}

// CompletePage thanks the participant and debriefs them. When the batch has
// not reached storage it offers a retry instead of the saved notice.
func CompletePage(responses int, persisted bool, contact string) templ.Component {
	return layout(func(p *page) {
		p.raw("<h1>")
		p.t("ThankYou")
		p.raw("</h1>")
		if persisted {
			p.raw("<p>")
			p.text(appI18n.Tp(p.ctx, "ResponsesSaved", responses))
			p.raw("</p>")
		} else {
			p.raw(`<div class="error" role="alert"><p>`)
			p.t("PersistFailed")
			p.raw("</p>")
			p.form("/retry")
			p.raw(`<button type="submit">`)
			p.t("Retry")
			p.raw("</button></form></div>")
		}
		p.raw("<h2>")
		p.t("DebriefTitle")
		p.raw("</h2>")
		for _, id := range debriefParagraphs {
			p.raw("<p>")
			p.t(id)
			p.raw("</p>")
		}
		p.raw("<p>")
		if contact != "" {
			p.text(appI18n.Td(p.ctx, "Contact", map[string]any{"Contact": contact}))
			p.raw(" ")
		}
		p.t("DebriefClosing")
		p.raw("</p>")
	})
}

// ErrorPage reports a request that could not be served.
func ErrorPage(msgID string) templ.Component {
	return layout(func(p *page) {
		p.raw("<h1>")
		p.t("ErrorTitle")
		p.raw(`</h1><p class="error">`)
		p.t(msgID)
		p.printf(`</p><p><a href="%s">`, p.url("/"))
		p.t("StartOver")
		p.raw("</a></p>")
	})
}
