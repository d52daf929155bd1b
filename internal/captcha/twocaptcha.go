package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/propscout/propscout/pkg/models"
)

// TwoCaptchaID identifies the 2captcha provider.
const TwoCaptchaID = "2captcha"

const (
	twoCaptchaSubmitURL = "http://2captcha.com/in.php"
	twoCaptchaResultURL = "http://2captcha.com/res.php"

	twoCaptchaNotReady = "CAPCHA_NOT_READY"
)

// TwoCaptcha talks the 2captcha form-encoded protocol: task creation via
// in.php, result lookup via res.php, both answering JSON when json=1.
type TwoCaptcha struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewTwoCaptcha creates a 2captcha provider. Empty endpoint fields in cfg
// fall back to the public API.
func NewTwoCaptcha(cfg ProviderConfig, client *http.Client) *TwoCaptcha {
	if cfg.SubmitURL == "" {
		cfg.SubmitURL = twoCaptchaSubmitURL
	}
	if cfg.ResultURL == "" {
		cfg.ResultURL = twoCaptchaResultURL
	}
	return &TwoCaptcha{cfg: cfg, client: client}
}

func (p *TwoCaptcha) Name() string { return TwoCaptchaID }

func (p *TwoCaptcha) Configured() bool { return p.cfg.configured() }

type twoCaptchaResponse struct {
	Status    int    `json:"status"`
	Request   string `json:"request"`
	ErrorText string `json:"error_text"`
}

// Submit creates a solving task. reCAPTCHA (v2 and v3) uses the
// userrecaptcha method with the googlekey parameter, hCaptcha its own
// method with sitekey.
func (p *TwoCaptcha) Submit(ctx context.Context, challenge models.ChallengeType, siteKey, pageURL string) (string, error) {
	params := url.Values{
		"key":     {p.cfg.APIKey},
		"pageurl": {pageURL},
		"json":    {"1"},
	}
	switch challenge {
	case models.ChallengeRecaptchaV2, models.ChallengeRecaptchaV3:
		params.Set("method", "userrecaptcha")
		params.Set("googlekey", siteKey)
	case models.ChallengeHCaptcha:
		params.Set("method", "hcaptcha")
		params.Set("sitekey", siteKey)
	default:
		return "", fmt.Errorf("%w: 2captcha cannot solve %s challenges", ErrProvider, challenge)
	}

	resp, err := p.post(ctx, p.cfg.SubmitURL, params)
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("%w: 2captcha submit failed: %s", ErrProvider, resp.ErrorText)
	}
	return resp.Request, nil
}

// Poll looks up a task result by id. A CAPCHA_NOT_READY answer means the
// worker is still solving; anything else that is not a success is terminal.
func (p *TwoCaptcha) Poll(ctx context.Context, taskID string) (string, bool, error) {
	params := url.Values{
		"key":    {p.cfg.APIKey},
		"action": {"get"},
		"id":     {taskID},
		"json":   {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ResultURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	resp, err := p.decode(req)
	if err != nil {
		return "", false, err
	}

	if resp.Status == 1 {
		return resp.Request, true, nil
	}
	if resp.Request == twoCaptchaNotReady {
		return "", false, nil
	}
	msg := resp.ErrorText
	if msg == "" {
		msg = resp.Request
	}
	return "", false, fmt.Errorf("%w: 2captcha result failed: %s", ErrProvider, msg)
}

func (p *TwoCaptcha) post(ctx context.Context, endpoint string, params url.Values) (*twoCaptchaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.decode(req)
}

func (p *TwoCaptcha) decode(req *http.Request) (*twoCaptchaResponse, error) {
	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: 2captcha answered HTTP %d", ErrProvider, httpResp.StatusCode)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	var resp twoCaptchaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: 2captcha answered non-JSON: %v", ErrProvider, err)
	}
	return &resp, nil
}
