package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/retry"
	"podcast-insights-go/internal/types"
)

// errSourceFetch marks the one failure class with a fallback: the remote
// side could not download the media itself.
var errSourceFetch = errors.New("remote could not fetch source media")

// pollState drives the submit-and-poll loop as an explicit state machine.
type pollState int

const (
	stateSubmitted pollState = iota
	statePollingFast
	statePollingSlow
	stateSucceeded
	stateFailed
	stateTimedOut
)

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // queued | processing | completed | failed
	Error     string `json:"error,omitempty"`
	ResultURL string `json:"result_url,omitempty"`
}

type resultDocument struct {
	AudioDuration float64 `json:"audio_duration"`
	Language      string  `json:"language,omitempty"`
	Channels      []struct {
		Text string `json:"text"`
	} `json:"channels"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type PollingConfig struct {
	BaseURL string
	APIKey  string
	TempDir string

	// Poll schedule: FastPolls polls at FastInterval, then SlowInterval,
	// bounded by MaxWait overall.
	FastInterval time.Duration
	FastPolls    int
	SlowInterval time.Duration
	MaxWait      time.Duration

	Retry retry.Config
}

// Polling is the submit-and-poll strategy. It operates on the remote media
// URL directly and never needs a local download up front; only the
// source-fetch fallback pulls the file locally.
type Polling struct {
	cfg    PollingConfig
	client *http.Client
	log    *logrus.Entry
}

func NewPolling(cfg PollingConfig, client *http.Client) *Polling {
	if cfg.FastInterval == 0 {
		cfg.FastInterval = 10 * time.Second
	}
	if cfg.FastPolls == 0 {
		cfg.FastPolls = 5
	}
	if cfg.SlowInterval == 0 {
		cfg.SlowInterval = 30 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 30 * time.Minute
	}
	return &Polling{cfg: cfg, client: client, log: logger.Component("transcribe-polling")}
}

func (p *Polling) NeedsLocalAudio() bool { return false }

func (p *Polling) Transcribe(ctx context.Context, ep types.Episode, _ string) (types.TranscriptionResult, error) {
	audioURL := p.resolveRedirects(ctx, ep.AudioURL)

	res, err := p.run(ctx, audioURL)
	if err == nil || !errors.Is(err, errSourceFetch) {
		return res, err
	}

	// The remote downloader choked on the source (tracking redirectors do
	// this). Pull the file ourselves, push it through the upload channel,
	// and submit once more.
	p.log.WithField("episode_id", ep.ID).Warn("remote source fetch failed, falling back to local upload")
	uploadURL, upErr := p.uploadLocalCopy(ctx, ep.AudioURL)
	if upErr != nil {
		return types.TranscriptionResult{}, fmt.Errorf("upload fallback: %w", upErr)
	}
	return p.run(ctx, uploadURL)
}

func (p *Polling) run(ctx context.Context, audioURL string) (types.TranscriptionResult, error) {
	id, err := p.submit(ctx, audioURL)
	if err != nil {
		return types.TranscriptionResult{}, err
	}

	final, err := p.awaitCompletion(ctx, id)
	if err != nil {
		return types.TranscriptionResult{}, err
	}
	return p.fetchResult(ctx, final.ResultURL)
}

func (p *Polling) submit(ctx context.Context, audioURL string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"audio_url": audioURL})
	resp, err := retry.Do(ctx, p.log, "submit-transcription", p.cfg.Retry, func() (submitResponse, error) {
		var out submitResponse
		err := p.doJSON(ctx, http.MethodPost, p.cfg.BaseURL+"/transcripts", bytes.NewReader(payload), &out)
		return out, err
	})
	if err != nil {
		return "", fmt.Errorf("submit transcription: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("submit transcription: no job id in response (error=%q)", resp.Error)
	}
	p.log.WithField("job_id", resp.ID).Info("transcription job submitted")
	return resp.ID, nil
}

// awaitCompletion walks the poll state machine until a terminal state.
func (p *Polling) awaitCompletion(ctx context.Context, id string) (statusResponse, error) {
	var (
		state    = stateSubmitted
		polls    int
		last     statusResponse
		deadline = time.Now().Add(p.cfg.MaxWait)
	)

	for {
		switch state {
		case stateSubmitted:
			state = statePollingFast

		case statePollingFast, statePollingSlow:
			interval := p.cfg.FastInterval
			if state == statePollingSlow {
				interval = p.cfg.SlowInterval
			}
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(interval):
			}
			if time.Now().After(deadline) {
				state = stateTimedOut
				continue
			}

			st, err := p.fetchStatus(ctx, id)
			if err != nil {
				// A flaky poll is not terminal; the next tick retries.
				p.log.WithError(err).WithField("job_id", id).Warn("status poll failed")
			} else {
				last = st
				switch st.Status {
				case "completed":
					state = stateSucceeded
					continue
				case "failed", "error":
					state = stateFailed
					continue
				}
			}

			polls++
			if state == statePollingFast && polls >= p.cfg.FastPolls {
				state = statePollingSlow
			}

		case stateSucceeded:
			return last, nil

		case stateFailed:
			if isSourceFetchFailure(last.Error) {
				return last, fmt.Errorf("%w: %s", errSourceFetch, last.Error)
			}
			return last, fmt.Errorf("transcription job failed: %s", last.Error)

		case stateTimedOut:
			return last, fmt.Errorf("transcription job %s did not complete within %s", id, p.cfg.MaxWait)
		}
	}
}

func (p *Polling) fetchStatus(ctx context.Context, id string) (statusResponse, error) {
	var out statusResponse
	err := p.doJSON(ctx, http.MethodGet, p.cfg.BaseURL+"/transcripts/"+id, nil, &out)
	return out, err
}

func (p *Polling) fetchResult(ctx context.Context, resultURL string) (types.TranscriptionResult, error) {
	if resultURL == "" {
		return types.TranscriptionResult{}, fmt.Errorf("completed job carries no result URL")
	}
	doc, err := retry.Do(ctx, p.log, "fetch-transcript", p.cfg.Retry, func() (resultDocument, error) {
		var out resultDocument
		err := p.doJSON(ctx, http.MethodGet, resultURL, nil, &out)
		return out, err
	})
	if err != nil {
		return types.TranscriptionResult{}, fmt.Errorf("fetch transcript document: %w", err)
	}

	var texts []string
	for _, ch := range doc.Channels {
		if t := strings.TrimSpace(ch.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return types.TranscriptionResult{
		Text:     strings.Join(texts, " "),
		Language: doc.Language,
		Duration: doc.AudioDuration,
	}, nil
}

// resolveRedirects follows tracking redirects and returns the final media
// URL, so the remote downloader sees the real file. Best effort: on any
// failure the original URL is used.
func (p *Polling) resolveRedirects(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return rawURL
	}
	defer resp.Body.Close()
	final := resp.Request.URL.String()
	if final != rawURL {
		p.log.WithFields(logrus.Fields{"from": rawURL, "to": final}).Debug("resolved media redirect")
	}
	return final
}

// uploadLocalCopy downloads the media to a temp file and pushes it through
// the pre-authorized upload endpoint, returning the upload URL to resubmit.
func (p *Polling) uploadLocalCopy(ctx context.Context, mediaURL string) (string, error) {
	tmp, err := os.CreateTemp(p.cfg.TempDir, "media-upload-*.mp3")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return "", fmt.Errorf("write media to disk: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind temp file: %w", err)
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/upload", tmp)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	upReq.Header.Set("Authorization", p.cfg.APIKey)
	upReq.Header.Set("Content-Type", "application/octet-stream")
	upResp, err := p.client.Do(upReq)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer upResp.Body.Close()
	body, _ := io.ReadAll(upResp.Body)
	if upResp.StatusCode >= 300 {
		return "", fmt.Errorf("upload media: status %d body=%s", upResp.StatusCode, string(body))
	}
	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil || out.UploadURL == "" {
		return "", fmt.Errorf("parse upload response: %v body=%s", err, string(body))
	}
	return out.UploadURL, nil
}

func (p *Polling) doJSON(ctx context.Context, method, url string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", p.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: status %d body=%s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		return retry.Permanent(fmt.Errorf("client error: status %d body=%s", resp.StatusCode, string(raw)))
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, string(raw))
	}
	return nil
}

func isSourceFetchFailure(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "could not fetch") ||
		strings.Contains(m, "download error") ||
		strings.Contains(m, "unable to download")
}
