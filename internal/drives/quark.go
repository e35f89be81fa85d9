// Quark Drive implementation of [Drive] (source provider).
//
// Endpoints follow the drive-pc.quark.cn PC web client. Saving shared
// content is asynchronous on the provider side: the save call returns a
// task id that is polled until the provider reports completion.
package drives

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

const (
	quarkBaseURL  = "https://drive-pc.quark.cn"
	quarkShareURL = "https://pan.quark.cn"
)

// quarkEnvelope is the common response wrapper of the Quark API.
type quarkEnvelope struct {
	Status  int             `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type quarkTokenData struct {
	Stoken string `json:"stoken"`
	Title  string `json:"title"`
}

type quarkFile struct {
	Fid      string `json:"fid"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	Dir      bool   `json:"dir"`
	ShareFid string `json:"share_fid_token"`
}

type quarkDetailData struct {
	List []quarkFile `json:"list"`
}

type quarkTaskData struct {
	TaskID string `json:"task_id"`
	Status int    `json:"status"`
	// Populated when the task finishes.
	SaveAs struct {
		Fids []string `json:"save_as_top_fids"`
	} `json:"save_as"`
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
}

const (
	quarkTaskRunning = 0
	quarkTaskDone    = 2
)

// QuarkDriveOpts configures a QuarkDrive client.
type QuarkDriveOpts struct {
	BaseURL      string        // defaults to the production API
	HTTPClient   *http.Client  // defaults to a client with Timeout
	Timeout      time.Duration // per-call deadline, defaults to 30s
	Token        TokenFunc     // required, supplies the session cookie
	PollInterval time.Duration // delay between provider task polls
	MaxPolls     int           // poll attempts before giving up
	RPS          float64       // client-side request rate limit
	Logger       *log.Logger
}

// QuarkDrive implements [Drive] for Quark Drive.
type QuarkDrive struct {
	baseURL      string
	httpClient   *http.Client
	token        TokenFunc
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxPolls     int
	logger       *log.Logger
}

// NewQuarkDrive creates a Quark Drive client.
func NewQuarkDrive(opts QuarkDriveOpts) *QuarkDrive {
	if opts.BaseURL == "" {
		opts.BaseURL = quarkBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxPolls == 0 {
		opts.MaxPolls = 50
	}
	if opts.RPS == 0 {
		opts.RPS = 5
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &QuarkDrive{
		baseURL:      opts.BaseURL,
		httpClient:   opts.HTTPClient,
		token:        opts.Token,
		limiter:      rate.NewLimiter(rate.Limit(opts.RPS), 1),
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		logger:       shared.WithLogger(opts.Logger, "component", "drive", "provider", models.ProviderQuark),
	}
}

func (q *QuarkDrive) Provider() models.Provider {
	return models.ProviderQuark
}

// doRequest performs an authenticated request against the Quark API and
// decodes the response envelope into result.
func (q *QuarkDrive) doRequest(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	if err := q.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	cookie, err := q.token(ctx)
	if err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	// Common parameters the PC client attaches to every call.
	query.Set("pr", "ucpro")
	query.Set("fr", "pc")

	apiURL := q.baseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Cookie", cookie)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", quarkShareURL+"/")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return &shared.DriveError{Provider: "quark", Message: err.Error(), Err: classifyTransport(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &shared.DriveError{Provider: "quark", Message: err.Error(), Err: shared.ErrNetworkError}
	}

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		return &shared.DriveError{
			Provider: "quark",
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, shared.Truncate(string(raw), 120)),
			Err:      sentinel,
		}
	}

	var envelope quarkEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if envelope.Code != 0 {
		return &shared.DriveError{
			Provider: "quark",
			Code:     envelope.Code,
			Message:  envelope.Message,
			Err:      classifyMessage(envelope.Message),
		}
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// ResolveShare exchanges a share link and access code for the share token
// and file listing.
func (q *QuarkDrive) ResolveShare(ctx context.Context, shareURL, accessCode string) (*ShareInfo, error) {
	pwdID, err := quarkShareIDFromURL(shareURL)
	if err != nil {
		return nil, err
	}

	var tokenData quarkTokenData
	err = q.doRequest(ctx, http.MethodPost, "/1/clouddrive/share/sharepage/token", nil, map[string]string{
		"pwd_id":   pwdID,
		"passcode": accessCode,
	}, &tokenData)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("pwd_id", pwdID)
	query.Set("stoken", tokenData.Stoken)
	query.Set("pdir_fid", "0")
	query.Set("_size", "100")

	var detail quarkDetailData
	if err := q.doRequest(ctx, http.MethodGet, "/1/clouddrive/share/sharepage/detail", query, nil, &detail); err != nil {
		return nil, err
	}

	info := &ShareInfo{
		Provider: models.ProviderQuark,
		URL:      shareURL,
		Handle:   pwdID,
		Token:    tokenData.Stoken,
		Title:    tokenData.Title,
	}
	for _, f := range detail.List {
		info.Files = append(info.Files, FileEntry{ID: f.Fid, Name: f.FileName, Size: f.Size, Dir: f.Dir})
		info.TotalSize += f.Size
	}
	if info.Title == "" && len(info.Files) > 0 {
		info.Title = info.Files[0].Name
	}

	q.logger.Debug("share resolved", "handle", pwdID, "files", len(info.Files))
	return info, nil
}

// SaveToOwnDrive saves the share's files into the user's drive and polls
// the resulting provider task until it completes.
func (q *QuarkDrive) SaveToOwnDrive(ctx context.Context, share *ShareInfo, folder string) (*SavedResource, error) {
	fids := make([]string, 0, len(share.Files))
	for _, f := range share.Files {
		fids = append(fids, f.ID)
	}

	var task quarkTaskData
	err := q.doRequest(ctx, http.MethodPost, "/1/clouddrive/share/sharepage/save", nil, map[string]any{
		"pwd_id":      share.Handle,
		"stoken":      share.Token,
		"fid_list":    fids,
		"to_pdir_fid": folder,
	}, &task)
	if err != nil {
		return nil, err
	}

	done, err := q.waitTask(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}

	saved := &SavedResource{Provider: models.ProviderQuark, Folder: folder, FileIDs: done.SaveAs.Fids}
	if len(saved.FileIDs) == 0 {
		saved.FileIDs = fids
	}
	return saved, nil
}

// CreateShare creates an outbound share of saved files and returns its link.
func (q *QuarkDrive) CreateShare(ctx context.Context, saved *SavedResource) (*ShareLink, error) {
	var task quarkTaskData
	err := q.doRequest(ctx, http.MethodPost, "/1/clouddrive/share", nil, map[string]any{
		"fid_list":     saved.FileIDs,
		"url_type":     1, // public link
		"expired_type": 1, // never expires
	}, &task)
	if err != nil {
		return nil, err
	}

	done, err := q.waitTask(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}

	link := done.ShareURL
	if link == "" && done.ShareID != "" {
		link = quarkShareURL + "/s/" + done.ShareID
	}
	if link == "" {
		return nil, &shared.DriveError{Provider: "quark", Message: "share task returned no link", Err: shared.ErrUnknown}
	}

	return &ShareLink{URL: link}, nil
}

// waitTask polls a provider-side task until it finishes. Exhausting the
// poll budget is reported as a Timeout.
func (q *QuarkDrive) waitTask(ctx context.Context, taskID string) (*quarkTaskData, error) {
	if taskID == "" {
		// Some calls complete synchronously and return no task.
		return &quarkTaskData{Status: quarkTaskDone}, nil
	}

	for attempt := 0; attempt < q.maxPolls; attempt++ {
		query := url.Values{}
		query.Set("task_id", taskID)
		query.Set("retry_index", fmt.Sprintf("%d", attempt))

		var task quarkTaskData
		if err := q.doRequest(ctx, http.MethodGet, "/1/clouddrive/task", query, nil, &task); err != nil {
			return nil, err
		}

		if task.Status == quarkTaskDone {
			return &task, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
		case <-time.After(q.pollInterval):
		}
	}

	return nil, &shared.DriveError{
		Provider: "quark",
		Message:  fmt.Sprintf("task %s still running after %d polls", taskID, q.maxPolls),
		Err:      shared.ErrTimeout,
	}
}

// quarkShareIDFromURL extracts the pwd_id from a pan.quark.cn share link.
func quarkShareIDFromURL(shareURL string) (string, error) {
	parsed, err := url.Parse(shareURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrShareNotFound, err)
	}

	// Links look like https://pan.quark.cn/s/<pwd_id>.
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "s" && parts[1] != "" {
		return parts[1], nil
	}

	return "", &shared.DriveError{
		Provider: "quark",
		Message:  fmt.Sprintf("unrecognized share link %q", shareURL),
		Err:      shared.ErrShareNotFound,
	}
}
