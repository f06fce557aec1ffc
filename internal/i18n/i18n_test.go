package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "QuestionLabel"); got != "Is this statement true or false?" {
		t.Errorf("T(QuestionLabel) = %q", got)
	}
	if got := T(ctx, "IncompleteWarning"); got != "Please complete both parts before continuing." {
		t.Errorf("T(IncompleteWarning) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "StartQuiz"); got != "Начать" {
		t.Errorf("T(StartQuiz) = %q, want 'Начать'", got)
	}
}

func TestDebriefTranslated(t *testing.T) {
	en := initLang(t, "en")
	ru := WithLocalizer(context.Background(), NewLocalizer("ru"))

	for _, id := range []string{"DebriefTitle", "DebriefThanks", "DebriefPurpose", "DebriefStimuli", "DebriefGoal", "DebriefAnonymous", "DebriefClosing"} {
		e, r := T(en, id), T(ru, id)
		if e == id {
			t.Errorf("%s has no English text", id)
		}
		if r == e {
			t.Errorf("%s falls back to English in ru: %q", id, r)
		}
	}

	got := Td(en, "Contact", map[string]any{"Contact": "lab@example.org"})
	if got != "If you have any questions, feel free to reach out to the research team at lab@example.org." {
		t.Errorf("Td(Contact) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "ResponsesSaved", 1); got != "Your 1 response has been saved." {
		t.Errorf("Tp(ResponsesSaved, 1) = %q", got)
	}
	if got := Tp(ctx, "ResponsesSaved", 16); got != "Your 16 responses have been saved." {
		t.Errorf("Tp(ResponsesSaved, 16) = %q", got)
	}

	ctx = WithLocalizer(ctx, NewLocalizer("ru"))
	if got := Tp(ctx, "ResponsesSaved", 5); got != "Сохранено 5 ответов." {
		t.Errorf("Tp(ResponsesSaved, 5) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "StatementNofM", map[string]any{"N": 3, "Total": 16})
	if got != "Statement 3 of 16" {
		t.Errorf("Td(StatementNofM) = %q, want 'Statement 3 of 16'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitUnsupported(t *testing.T) {
	if err := Init("de"); err == nil {
		t.Error("expected error for language without translations")
	}
	if err := Init("not a tag!"); err == nil {
		t.Error("expected error for malformed tag")
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	langs := Languages()
	if !slices.Contains(langs, "en") || !slices.Contains(langs, "ru") {
		t.Errorf("Languages() = %v, want en and ru", langs)
	}
}

func TestMiddlewareNegotiation(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "StartQuiz")
	}))

	tests := []struct {
		name   string
		url    string
		accept string
		want   string
	}{
		{"default", "/", "", "Start Quiz"},
		{"accept language", "/", "ru-RU,ru;q=0.9,en;q=0.5", "Начать"},
		{"query wins", "/?lang=en", "ru", "Start Quiz"},
		{"query ru", "/?lang=ru", "", "Начать"},
		{"unsupported falls back", "/", "fr-CA", "Start Quiz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
