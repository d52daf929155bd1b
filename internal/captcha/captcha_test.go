package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/propscout/propscout/pkg/models"
)

// scriptPage fakes a live page by routing Eval through a function.
type scriptPage struct {
	eval func(js string, out any) error
}

func (p *scriptPage) Eval(_ context.Context, js string, out any) error {
	return p.eval(js, out)
}

func testOrchestrator(providers []Provider) *Orchestrator {
	return NewOrchestrator(providers,
		WithPollInterval(5*time.Millisecond),
		WithMaxWait(time.Second),
	)
}

func TestTwoCaptchaSolve(t *testing.T) {
	var submits, polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			submits++
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.Form.Get("method"); got != "userrecaptcha" {
				t.Errorf("method = %q, want userrecaptcha", got)
			}
			if got := r.Form.Get("googlekey"); got != "sitekey-1" {
				t.Errorf("googlekey = %q, want sitekey-1", got)
			}
			if got := r.Form.Get("json"); got != "1" {
				t.Errorf("json = %q, want 1", got)
			}
			fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
		case "/res.php":
			polls++
			if got := r.URL.Query().Get("id"); got != "task-42" {
				t.Errorf("poll id = %q, want task-42", got)
			}
			if polls < 3 {
				fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
				return
			}
			fmt.Fprint(w, `{"status":1,"request":"solved-token"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	prov := NewTwoCaptcha(ProviderConfig{
		ID:        TwoCaptchaID,
		APIKey:    "key",
		SubmitURL: srv.URL + "/in.php",
		ResultURL: srv.URL + "/res.php",
	}, srv.Client())

	o := testOrchestrator([]Provider{prov})
	token, err := o.Solve(context.Background(), nil, models.ChallengeRecaptchaV2, "sitekey-1", "https://example.com/listing")
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if token != "solved-token" {
		t.Fatalf("token = %q, want solved-token", token)
	}
	if submits != 1 {
		t.Errorf("submits = %d, want 1", submits)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestTwoCaptchaHCaptchaMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("method"); got != "hcaptcha" {
			t.Errorf("method = %q, want hcaptcha", got)
		}
		if got := r.Form.Get("sitekey"); got != "hkey" {
			t.Errorf("sitekey = %q, want hkey", got)
		}
		fmt.Fprint(w, `{"status":1,"request":"task-7"}`)
	}))
	defer srv.Close()

	prov := NewTwoCaptcha(ProviderConfig{
		APIKey:    "key",
		SubmitURL: srv.URL,
		ResultURL: srv.URL,
	}, srv.Client())

	id, err := prov.Submit(context.Background(), models.ChallengeHCaptcha, "hkey", "https://example.com")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "task-7" {
		t.Fatalf("task id = %q, want task-7", id)
	}
}

func TestAntiCaptchaSolve(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			var body antiCaptchaSubmit
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode submit: %v", err)
			}
			if body.Task.Type != "NoCaptchaTaskProxyless" {
				t.Errorf("task type = %q, want NoCaptchaTaskProxyless", body.Task.Type)
			}
			if body.Task.WebsiteKey != "sitekey-2" {
				t.Errorf("websiteKey = %q, want sitekey-2", body.Task.WebsiteKey)
			}
			fmt.Fprint(w, `{"errorId":0,"taskId":9001}`)
		case "/getTaskResult":
			polls++
			if polls < 2 {
				fmt.Fprint(w, `{"errorId":0,"status":"processing"}`)
				return
			}
			fmt.Fprint(w, `{"errorId":0,"status":"ready","solution":{"gRecaptchaResponse":"anti-token"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	prov := NewAntiCaptcha(ProviderConfig{
		ID:        AntiCaptchaID,
		APIKey:    "key",
		SubmitURL: srv.URL + "/createTask",
		ResultURL: srv.URL + "/getTaskResult",
	}, srv.Client())

	o := testOrchestrator([]Provider{prov})
	token, err := o.Solve(context.Background(), nil, models.ChallengeRecaptchaV2, "sitekey-2", "https://example.com/listing")
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if token != "anti-token" {
		t.Fatalf("token = %q, want anti-token", token)
	}
}

func TestSolveTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			fmt.Fprint(w, `{"status":1,"request":"task-slow"}`)
			return
		}
		fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
	}))
	defer srv.Close()

	prov := NewTwoCaptcha(ProviderConfig{
		APIKey:    "key",
		SubmitURL: srv.URL + "/in.php",
		ResultURL: srv.URL + "/res.php",
	}, srv.Client())

	o := NewOrchestrator([]Provider{prov},
		WithPollInterval(5*time.Millisecond),
		WithMaxWait(30*time.Millisecond),
	)
	start := time.Now()
	_, err := o.Solve(context.Background(), nil, models.ChallengeRecaptchaV2, "k", "https://example.com")
	if !errors.Is(err, ErrSolveTimeout) {
		t.Fatalf("err = %v, want ErrSolveTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("timed out after %s, before the max wait elapsed", elapsed)
	}
}

func TestTerminalProviderErrorStopsPolling(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			fmt.Fprint(w, `{"status":1,"request":"task-bad"}`)
			return
		}
		polls++
		fmt.Fprint(w, `{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`)
	}))
	defer srv.Close()

	prov := NewTwoCaptcha(ProviderConfig{
		APIKey:    "key",
		SubmitURL: srv.URL + "/in.php",
		ResultURL: srv.URL + "/res.php",
	}, srv.Client())

	o := testOrchestrator([]Provider{prov})
	_, err := o.Solve(context.Background(), nil, models.ChallengeRecaptchaV2, "k", "https://example.com")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	if polls != 1 {
		t.Errorf("polls = %d, want 1 (terminal errors must not be retried)", polls)
	}
}

func TestSubmitErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errorId":22,"errorDescription":"ERROR_KEY_DOES_NOT_EXIST"}`)
	}))
	defer srv.Close()

	prov := NewAntiCaptcha(ProviderConfig{
		APIKey:    "key",
		SubmitURL: srv.URL,
		ResultURL: srv.URL,
	}, srv.Client())

	o := testOrchestrator([]Provider{prov})
	_, err := o.Solve(context.Background(), nil, models.ChallengeRecaptchaV2, "k", "https://example.com")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestSwitchProviderRoundRobin(t *testing.T) {
	providers := NewProviders([]ProviderConfig{
		{ID: TwoCaptchaID, APIKey: "a"},
		{ID: AntiCaptchaID, APIKey: "b"},
	}, nil)
	if len(providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(providers))
	}

	o := testOrchestrator(providers)
	if got := o.Stats().Current; got != TwoCaptchaID {
		t.Fatalf("initial provider = %q, want %q", got, TwoCaptchaID)
	}
	if got := o.SwitchProvider(); got != AntiCaptchaID {
		t.Fatalf("after switch = %q, want %q", got, AntiCaptchaID)
	}
	if got := o.SwitchProvider(); got != TwoCaptchaID {
		t.Fatalf("after second switch = %q, want %q", got, TwoCaptchaID)
	}
}

func TestStatsReportsConfiguredProviders(t *testing.T) {
	providers := NewProviders([]ProviderConfig{
		{ID: TwoCaptchaID, APIKey: "real-key"},
		{ID: AntiCaptchaID, APIKey: "YOUR_API_KEY"},
	}, nil)

	stats := testOrchestrator(providers).Stats()
	if len(stats.Available) != 2 {
		t.Fatalf("available = %v, want 2 entries", stats.Available)
	}
	if len(stats.Configured) != 1 || stats.Configured[0] != TwoCaptchaID {
		t.Fatalf("configured = %v, want [%s] (placeholder keys do not count)", stats.Configured, TwoCaptchaID)
	}
}

func TestDetectClassifiesChallenges(t *testing.T) {
	page := &scriptPage{eval: func(_ string, out any) error {
		*(out.(*[]string)) = []string{"recaptcha-v2", "generic"}
		return nil
	}}

	o := testOrchestrator(nil)
	got, err := o.Detect(context.Background(), page)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	want := []models.ChallengeType{models.ChallengeRecaptchaV2, models.ChallengeGeneric}
	if len(got) != len(want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Detect[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDetectEmptyMeansNoChallenge(t *testing.T) {
	page := &scriptPage{eval: func(_ string, out any) error {
		*(out.(*[]string)) = nil
		return nil
	}}

	got, err := testOrchestrator(nil).Detect(context.Background(), page)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Detect = %v, want empty", got)
	}
}

func TestInjectFillsResponseField(t *testing.T) {
	var ran []string
	page := &scriptPage{eval: func(js string, out any) error {
		ran = append(ran, js)
		if b, ok := out.(*bool); ok {
			*b = true
		}
		return nil
	}}

	o := testOrchestrator(nil)
	if err := o.inject(context.Background(), page, models.ChallengeRecaptchaV2, "tok"); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("scripts run = %d, want 1", len(ran))
	}
	for _, want := range []string{"g-recaptcha-response", `"tok"`} {
		if !strings.Contains(ran[0], want) {
			t.Errorf("inject script missing %q", want)
		}
	}

	// Generic challenges have no response field and run nothing.
	ran = nil
	if err := o.inject(context.Background(), page, models.ChallengeGeneric, "tok"); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("scripts run = %d, want 0 for generic challenge", len(ran))
	}
}
