package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Recorder starts call recordings through the Twilio REST API.
//
// The bridge calls StartRecording fire-and-forget when an AI conversation
// begins; a failure is logged by the caller and never fatal to the call.
type Recorder struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

func NewRecorder(accountSID, authToken string) *Recorder {
	return &Recorder{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com/2010-04-01",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StartRecording begins dual-channel recording of a live call. The status
// callback receives recording lifecycle pings.
func (r *Recorder) StartRecording(ctx context.Context, callSID, statusCallbackURL string) error {
	if callSID == "" {
		return fmt.Errorf("telephony: call sid required")
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s/Recordings.json", r.baseURL, r.accountSID, callSID)

	form := url.Values{}
	if statusCallbackURL != "" {
		form.Set("RecordingStatusCallback", statusCallbackURL)
		form.Set("RecordingStatusCallbackEvent", "completed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.accountSID, r.authToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: start recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telephony: start recording: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
