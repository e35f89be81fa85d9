// Baidu Netdisk implementation of [Drive] (destination provider).
//
// Endpoints follow the pan.baidu.com web client. Resolving a protected
// share requires a verify call that yields a share-scoped session value
// (bdclnd) attached to subsequent calls.
package drives

import (
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

const baiduBaseURL = "https://pan.baidu.com"

// Baidu business error numbers observed at the share endpoints.
const (
	baiduErrnoOK          = 0
	baiduErrnoAuthInvalid = -6
	baiduErrnoWrongPasswd = -9
	baiduErrnoShareGone   = -12
	baiduErrnoFileExists  = 12
)

type baiduEnvelope struct {
	Errno   int             `json:"errno"`
	ShowMsg string          `json:"show_msg"`
	Randsk  string          `json:"randsk"`
	List    json.RawMessage `json:"list"`
	ShareID int64           `json:"shareid"`
	UK      int64           `json:"uk"`
	Link    string          `json:"link"`
}

type baiduFile struct {
	FsID     json.Number `json:"fs_id"`
	Filename string      `json:"server_filename"`
	Size     int64       `json:"size"`
	IsDir    json.Number `json:"isdir"`
}

// BaiduDriveOpts configures a BaiduDrive client.
type BaiduDriveOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Token      TokenFunc // required, supplies the session cookie
	RPS        float64
	Logger     *log.Logger
}

// BaiduDrive implements [Drive] for Baidu Netdisk.
type BaiduDrive struct {
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewBaiduDrive creates a Baidu Netdisk client.
func NewBaiduDrive(opts BaiduDriveOpts) *BaiduDrive {
	if opts.BaseURL == "" {
		opts.BaseURL = baiduBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RPS == 0 {
		opts.RPS = 5
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &BaiduDrive{
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		token:      opts.Token,
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), 1),
		logger:     shared.WithLogger(opts.Logger, "component", "drive", "provider", models.ProviderBaidu),
	}
}

func (b *BaiduDrive) Provider() models.Provider {
	return models.ProviderBaidu
}

// doRequest performs an authenticated form-encoded request and decodes the
// envelope. extraCookie carries the share-scoped BDCLND value when set.
func (b *BaiduDrive) doRequest(ctx context.Context, method, path string, query url.Values, form url.Values, extraCookie string) (*baiduEnvelope, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	cookie, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	if extraCookie != "" {
		cookie = cookie + "; " + extraCookie
	}

	apiURL := b.baseURL + path
	if query != nil {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Cookie", cookie)
	req.Header.Set("Referer", b.baseURL+"/disk/home")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &shared.DriveError{Provider: "baidu", Message: err.Error(), Err: classifyTransport(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.DriveError{Provider: "baidu", Message: err.Error(), Err: shared.ErrNetworkError}
	}

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		return nil, &shared.DriveError{
			Provider: "baidu",
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, shared.Truncate(string(raw), 120)),
			Err:      sentinel,
		}
	}

	var envelope baiduEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if envelope.Errno != baiduErrnoOK {
		return nil, &shared.DriveError{
			Provider: "baidu",
			Code:     envelope.Errno,
			Message:  envelope.ShowMsg,
			Err:      classifyErrno(envelope.Errno, envelope.ShowMsg),
		}
	}

	return &envelope, nil
}

// classifyErrno maps a Baidu business errno to a sentinel, falling back to
// the message fragments.
func classifyErrno(errno int, message string) error {
	switch errno {
	case baiduErrnoAuthInvalid:
		return shared.ErrAuthExpired
	case baiduErrnoWrongPasswd:
		return shared.ErrInvalidAccessCode
	case baiduErrnoShareGone:
		return shared.ErrShareExpired
	case baiduErrnoFileExists:
		return shared.ErrFileExists
	}
	return classifyMessage(message)
}

// ResolveShare verifies the share's access code and lists its root files.
func (b *BaiduDrive) ResolveShare(ctx context.Context, shareURL, accessCode string) (*ShareInfo, error) {
	surl, err := baiduShortURLFromURL(shareURL)
	if err != nil {
		return nil, err
	}

	var shareToken string
	if accessCode != "" {
		query := url.Values{}
		query.Set("surl", surl)

		form := url.Values{}
		form.Set("pwd", accessCode)

		envelope, err := b.doRequest(ctx, http.MethodPost, "/share/verify", query, form, "")
		if err != nil {
			return nil, err
		}
		shareToken = envelope.Randsk
	}

	query := url.Values{}
	query.Set("shorturl", surl)
	query.Set("root", "1")

	envelope, err := b.doRequest(ctx, http.MethodGet, "/share/list", query, nil, bdclndCookie(shareToken))
	if err != nil {
		return nil, err
	}

	var files []baiduFile
	if len(envelope.List) > 0 {
		if err := json.Unmarshal(envelope.List, &files); err != nil {
			return nil, fmt.Errorf("failed to decode share list: %w", err)
		}
	}

	info := &ShareInfo{
		Provider: models.ProviderBaidu,
		URL:      shareURL,
		Handle:   fmt.Sprintf("%d:%d", envelope.ShareID, envelope.UK),
		Token:    shareToken,
	}
	for _, f := range files {
		isDir := f.IsDir.String() == "1"
		info.Files = append(info.Files, FileEntry{ID: f.FsID.String(), Name: f.Filename, Size: f.Size, Dir: isDir})
		info.TotalSize += f.Size
	}
	if len(info.Files) > 0 {
		info.Title = info.Files[0].Name
	}

	b.logger.Debug("share resolved", "handle", info.Handle, "files", len(info.Files))
	return info, nil
}

// SaveToOwnDrive transfers the share's files into the user's drive folder.
// A file-exists errno is surfaced as ErrFileExists; the caller decides
// whether that is fatal.
func (b *BaiduDrive) SaveToOwnDrive(ctx context.Context, share *ShareInfo, folder string) (*SavedResource, error) {
	shareID, uk, err := splitBaiduHandle(share.Handle)
	if err != nil {
		return nil, err
	}

	fsIDs := make([]string, 0, len(share.Files))
	for _, f := range share.Files {
		fsIDs = append(fsIDs, f.ID)
	}

	query := url.Values{}
	query.Set("shareid", shareID)
	query.Set("from", uk)

	form := url.Values{}
	form.Set("fsidlist", "["+strings.Join(fsIDs, ",")+"]")
	form.Set("path", folder)

	if _, err := b.doRequest(ctx, http.MethodPost, "/share/transfer", query, form, bdclndCookie(share.Token)); err != nil {
		return nil, err
	}

	return &SavedResource{Provider: models.ProviderBaidu, FileIDs: fsIDs, Folder: folder}, nil
}

// CreateShare creates an outbound share of the saved folder with a
// generated access code.
func (b *BaiduDrive) CreateShare(ctx context.Context, saved *SavedResource) (*ShareLink, error) {
	accessCode := accessCodeFor(saved.Folder)

	form := url.Values{}
	form.Set("path_list", fmt.Sprintf("[%q]", saved.Folder))
	form.Set("schannel", "4") // share with access code
	form.Set("pwd", accessCode)
	form.Set("period", "0") // never expires

	envelope, err := b.doRequest(ctx, http.MethodPost, "/share/pset", nil, form, "")
	if err != nil {
		return nil, err
	}

	if envelope.Link == "" {
		return nil, &shared.DriveError{Provider: "baidu", Message: "share call returned no link", Err: shared.ErrUnknown}
	}

	return &ShareLink{URL: envelope.Link, AccessCode: accessCode}, nil
}

// accessCodeFor derives a stable four-character share code from the path so
// re-sharing the same folder keeps the same code.
func accessCodeFor(path string) string {
	const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	var sum uint32
	for _, r := range path {
		sum = sum*31 + uint32(r)
	}
	code := make([]byte, 4)
	for i := range code {
		code[i] = alphabet[sum%uint32(len(alphabet))]
		sum /= 7
	}
	return string(code)
}

func bdclndCookie(shareToken string) string {
	if shareToken == "" {
		return ""
	}
	return "BDCLND=" + shareToken
}

func splitBaiduHandle(handle string) (shareID, uk string, err error) {
	parts := strings.SplitN(handle, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed share handle %q", handle)
	}
	return parts[0], parts[1], nil
}

// baiduShortURLFromURL extracts the short id from a pan.baidu.com share link.
func baiduShortURLFromURL(shareURL string) (string, error) {
	parsed, err := url.Parse(shareURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrShareNotFound, err)
	}

	// Links look like https://pan.baidu.com/s/1<short> or carry ?surl=.
	if surl := parsed.Query().Get("surl"); surl != "" {
		return surl, nil
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "s" && parts[1] != "" {
		return strings.TrimPrefix(parts[1], "1"), nil
	}

	return "", &shared.DriveError{
		Provider: "baidu",
		Message:  fmt.Sprintf("unrecognized share link %q", shareURL),
		Err:      shared.ErrShareNotFound,
	}
}
