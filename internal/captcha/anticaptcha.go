package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/propscout/propscout/pkg/models"
)

// AntiCaptchaID identifies the anti-captcha.com provider.
const AntiCaptchaID = "anticaptcha"

const (
	antiCaptchaSubmitURL = "https://api.anti-captcha.com/createTask"
	antiCaptchaResultURL = "https://api.anti-captcha.com/getTaskResult"
)

// AntiCaptcha talks the anti-captcha JSON task protocol: createTask with a
// typed proxyless task object, getTaskResult keyed by numeric task id.
type AntiCaptcha struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewAntiCaptcha creates an anti-captcha provider. Empty endpoint fields
// in cfg fall back to the public API.
func NewAntiCaptcha(cfg ProviderConfig, client *http.Client) *AntiCaptcha {
	if cfg.SubmitURL == "" {
		cfg.SubmitURL = antiCaptchaSubmitURL
	}
	if cfg.ResultURL == "" {
		cfg.ResultURL = antiCaptchaResultURL
	}
	return &AntiCaptcha{cfg: cfg, client: client}
}

func (p *AntiCaptcha) Name() string { return AntiCaptchaID }

func (p *AntiCaptcha) Configured() bool { return p.cfg.configured() }

type antiCaptchaTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type antiCaptchaSubmit struct {
	ClientKey string          `json:"clientKey"`
	Task      antiCaptchaTask `json:"task"`
}

type antiCaptchaResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Submit creates a proxyless solving task of the type matching the
// challenge.
func (p *AntiCaptcha) Submit(ctx context.Context, challenge models.ChallengeType, siteKey, pageURL string) (string, error) {
	var taskType string
	switch challenge {
	case models.ChallengeRecaptchaV2, models.ChallengeRecaptchaV3:
		taskType = "NoCaptchaTaskProxyless"
	case models.ChallengeHCaptcha:
		taskType = "HCaptchaTaskProxyless"
	default:
		return "", fmt.Errorf("%w: anti-captcha cannot solve %s challenges", ErrProvider, challenge)
	}

	resp, err := p.post(ctx, p.cfg.SubmitURL, antiCaptchaSubmit{
		ClientKey: p.cfg.APIKey,
		Task: antiCaptchaTask{
			Type:       taskType,
			WebsiteURL: pageURL,
			WebsiteKey: siteKey,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.ErrorID != 0 {
		return "", fmt.Errorf("%w: anti-captcha submit failed: %s", ErrProvider, resp.ErrorDescription)
	}
	return strconv.FormatInt(resp.TaskID, 10), nil
}

// Poll checks a task via getTaskResult. Status "processing" means keep
// waiting; any reported error is terminal.
func (p *AntiCaptcha) Poll(ctx context.Context, taskID string) (string, bool, error) {
	id, err := strconv.ParseInt(taskID, 10, 64)
	if err != nil {
		return "", false, fmt.Errorf("%w: malformed anti-captcha task id %q", ErrProvider, taskID)
	}

	resp, err := p.post(ctx, p.cfg.ResultURL, map[string]any{
		"clientKey": p.cfg.APIKey,
		"taskId":    id,
	})
	if err != nil {
		return "", false, err
	}
	if resp.ErrorID != 0 {
		return "", false, fmt.Errorf("%w: anti-captcha result failed: %s", ErrProvider, resp.ErrorDescription)
	}
	if resp.Status == "ready" {
		return resp.Solution.GRecaptchaResponse, true, nil
	}
	return "", false, nil
}

func (p *AntiCaptcha) post(ctx context.Context, endpoint string, payload any) (*antiCaptchaResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: anti-captcha answered HTTP %d", ErrProvider, httpResp.StatusCode)
	}
	var resp antiCaptchaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: anti-captcha answered non-JSON: %v", ErrProvider, err)
	}
	return &resp, nil
}
