package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	categoriesPath = "/wp-json/wp/v2/categories"
	mediaPath      = "/wp-json/wp/v2/media"
	postsPath      = "/wp-json/wp/v2/posts"

	maxImageBytes    int64 = 20 * 1024 * 1024
	maxCategoryPages       = 20
)

// APIError is a non-2xx answer from the WordPress REST API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
		TermID int `json:"term_id"`
	} `json:"data"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wordpress: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("wordpress: HTTP %d", e.Status)
}

type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type Media struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

// NewPost is the body of a post creation request.
type NewPost struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Categories    []int  `json:"categories,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
}

type Post struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// Image is a downloaded picture that decoded successfully.
type Image struct {
	Data []byte
	MIME string
	Ext  string
}

// Client is a thin WordPress REST client authenticated with an application
// password. No call has a timeout of its own; ctx bounds them.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewClient(baseURL, username, appPassword string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: appPassword,
		http:     httpClient,
	}
}

func (c *Client) endpoint(path string) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("wordpress url is not configured")
	}
	return c.baseURL + path, nil
}

// do sends req with basic auth and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		apiErr.Status = resp.StatusCode
		return resp, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("wordpress: decode response: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) (*http.Response, error) {
	u, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// ListCategories returns every category, following X-WP-TotalPages. When a
// later page fails, the pages already fetched are returned with the error.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	base, err := c.endpoint(categoriesPath)
	if err != nil {
		return nil, err
	}
	var all []Category
	for page := 1; page <= maxCategoryPages; page++ {
		q := url.Values{}
		q.Set("per_page", "100")
		q.Set("page", strconv.Itoa(page))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var batch []Category
		resp, err := c.do(req, &batch)
		if err != nil {
			// 已取到的页照样返回。
			return all, fmt.Errorf("categories page %d: %w", page, err)
		}
		all = append(all, batch...)
		total, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
		if page >= total || len(batch) == 0 {
			break
		}
	}
	return all, nil
}

// CreateCategory creates a category and returns its id. When WordPress
// reports the term already exists, the existing id is returned.
func (c *Client) CreateCategory(ctx context.Context, name, slug, description string) (int, error) {
	in := map[string]string{"name": name, "slug": slug, "description": description}
	var created Category
	resp, err := c.postJSON(ctx, categoriesPath, in, &created)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "term_exists" && apiErr.Data.TermID > 0 {
			return apiErr.Data.TermID, nil
		}
		return 0, err
	}
	if resp.StatusCode != http.StatusCreated || created.ID == 0 {
		return 0, fmt.Errorf("wordpress: create category returned %d", resp.StatusCode)
	}
	return created.ID, nil
}

// DownloadImage fetches rawURL and checks that it really is a decodable image.
func (c *Client) DownloadImage(ctx context.Context, rawURL string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Image{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, err
	}
	if int64(len(data)) > maxImageBytes {
		return Image{}, fmt.Errorf("download image: larger than %d bytes", maxImageBytes)
	}
	return inspectImage(data)
}

func inspectImage(data []byte) (Image, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, fmt.Errorf("not an image: %s", mt.String())
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	return Image{Data: data, MIME: mt.String(), Ext: mt.Extension()}, nil
}

// UploadMedia 上传到媒体库，返回 id 与地址。
func (c *Client) UploadMedia(ctx context.Context, filename, title string, img Image) (Media, error) {
	u, err := c.endpoint(mediaPath)
	if err != nil {
		return Media{}, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", img.MIME)
	part, err := writer.CreatePart(h)
	if err != nil {
		return Media{}, err
	}
	if _, err := part.Write(img.Data); err != nil {
		return Media{}, err
	}
	if err := writer.WriteField("title", title); err != nil {
		return Media{}, err
	}
	if err := writer.Close(); err != nil {
		return Media{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return Media{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var m Media
	if _, err := c.do(req, &m); err != nil {
		return Media{}, err
	}
	if m.ID == 0 {
		return Media{}, errors.New("wordpress: upload returned no media id")
	}
	return m, nil
}

func (c *Client) CreatePost(ctx context.Context, p NewPost) (Post, error) {
	var out Post
	if _, err := c.postJSON(ctx, postsPath, p, &out); err != nil {
		return Post{}, err
	}
	return out, nil
}
