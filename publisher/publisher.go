// Package publisher posts generated content to a WordPress site.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCategoryID is WordPress's "Uncategorized".
const DefaultCategoryID = 1

var (
	ErrNoLink       = errors.New("wordpress returned no post link")
	ErrMissingTitle = errors.New("post title is required")
)

// Config holds the WordPress site and its application-password credentials.
type Config struct {
	URL         string
	Username    string
	AppPassword string
}

// PublishParams describes the content to be published.
type PublishParams struct {
	Title               string
	Content             string
	Category            string
	CategoryDescription string
	MetaImageURL        string
}

// Publisher applies the publishing policy on top of Client: categories are
// reused or created, a cover image is attached when possible, and only a
// post without a link is a failure.
type Publisher struct {
	client  *Client
	verbose bool
	logger  *log.Logger
	now     func() time.Time
}

func New(cfg Config, httpClient *http.Client, verbose bool, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		client:  NewClient(cfg.URL, cfg.Username, cfg.AppPassword, httpClient),
		verbose: verbose,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *Publisher) infof(format string, args ...interface{}) {
	if !p.verbose {
		return
	}
	p.logger.Printf("[INFO] "+format, args...)
}

// Publish creates a published post and returns it.
func (p *Publisher) Publish(ctx context.Context, params PublishParams) (Post, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Post{}, ErrMissingTitle
	}

	body, err := mdToHTML(params.Content)
	if err != nil {
		return Post{}, err
	}
	categoryID := p.ResolveCategory(ctx, params.Category, params.CategoryDescription)

	np := NewPost{
		Title:      title,
		Content:    body,
		Status:     "publish",
		Categories: []int{categoryID},
	}
	if params.MetaImageURL != "" {
		np.FeaturedMedia = p.attachImage(ctx, params.MetaImageURL)
	}
	return p.create(ctx, np)
}

// create posts np; if that fails with a featured image, it tries once more
// without the image.
func (p *Publisher) create(ctx context.Context, np NewPost) (Post, error) {
	post, err := p.client.CreatePost(ctx, np)
	if err != nil && np.FeaturedMedia != 0 {
		p.logger.Printf("[publisher] create post with media=%d failed, retrying without image: %v", np.FeaturedMedia, err)
		np.FeaturedMedia = 0
		post, err = p.client.CreatePost(ctx, np)
	}
	if err != nil {
		p.logger.Printf("[publisher] create post failed: %v", err)
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	if post.Link == "" {
		p.logger.Printf("[publisher] post id=%d has no link", post.ID)
		return Post{}, ErrNoLink
	}
	p.infof("Post created: id=%d link=%s", post.ID, post.Link)
	return post, nil
}

// ResolveCategory 按名称（忽略大小写）复用已有分类，否则新建；失败回退默认分类。
func (p *Publisher) ResolveCategory(ctx context.Context, name, description string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultCategoryID
	}

	cats, err := p.client.ListCategories(ctx)
	if err != nil {
		p.logger.Printf("[publisher] list categories: %v", err)
	}
	for _, c := range cats {
		if strings.EqualFold(html.UnescapeString(c.Name), name) {
			p.infof("Reusing category %q id=%d", name, c.ID)
			return c.ID
		}
	}

	id, err := p.client.CreateCategory(ctx, name, Slugify(name), description)
	if err != nil {
		p.logger.Printf("[publisher] create category name=%q: %v; using default", name, err)
		return DefaultCategoryID
	}
	p.infof("Created category %q id=%d", name, id)
	return id
}

// Slugify lower-cases name and replaces spaces with hyphens.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// attachImage downloads imageURL and uploads it to the media library. It
// returns 0 when any step fails; the post then goes out without an image.
func (p *Publisher) attachImage(ctx context.Context, imageURL string) int {
	img, err := p.client.DownloadImage(ctx, imageURL)
	if err != nil {
		p.logger.Printf("[publisher] download image url=%s: %v", imageURL, err)
		return 0
	}
	name := mediaName(p.now())
	m, err := p.client.UploadMedia(ctx, name+img.Ext, name, img)
	if err != nil {
		p.logger.Printf("[publisher] upload image url=%s: %v", imageURL, err)
		return 0
	}
	p.infof("Uploaded cover %s -> media_id=%d", imageURL, m.ID)
	return m.ID
}

// mediaName is "image<unix>-<short uuid>", unique even within one second.
func mediaName(now time.Time) string {
	return fmt.Sprintf("image%d-%s", now.Unix(), uuid.NewString()[:8])
}

// MarkdownParams describes a local markdown file to publish from the CLI.
type MarkdownParams struct {
	MarkdownPath string
	Title        string
	Category     string
	CoverPath    string
}

// PublishMarkdownFile uploads the file's local images, renders it and
// publishes it. Unlike Publish, a cover that cannot be uploaded is an error.
func (p *Publisher) PublishMarkdownFile(ctx context.Context, params MarkdownParams) (Post, error) {
	if params.MarkdownPath == "" || strings.TrimSpace(params.Title) == "" {
		return Post{}, errors.New("markdown path and title are required")
	}
	mdBytes, err := os.ReadFile(params.MarkdownPath)
	if err != nil {
		return Post{}, err
	}

	md, err := p.replaceMarkdownImages(ctx, string(mdBytes), params.MarkdownPath)
	if err != nil {
		return Post{}, err
	}
	p.infof("Processed markdown and uploaded inline images if any")

	body, err := mdToHTML(md)
	if err != nil {
		return Post{}, err
	}
	p.infof("Converted Markdown to HTML")

	np := NewPost{
		Title:      strings.TrimSpace(params.Title),
		Content:    body,
		Status:     "publish",
		Categories: []int{p.ResolveCategory(ctx, params.Category, "")},
	}
	if params.CoverPath != "" {
		m, err := p.uploadLocalImage(ctx, params.CoverPath)
		if err != nil {
			return Post{}, fmt.Errorf("upload cover: %w", err)
		}
		p.infof("Uploaded cover image %s -> media_id=%d", params.CoverPath, m.ID)
		np.FeaturedMedia = m.ID
	}
	return p.create(ctx, np)
}

func (p *Publisher) uploadLocalImage(ctx context.Context, path string) (Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Media{}, err
	}
	img, err := inspectImage(data)
	if err != nil {
		return Media{}, fmt.Errorf("%s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p.client.UploadMedia(ctx, filepath.Base(path), name, img)
}

var imgPattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)

// replaceMarkdownImages uploads images referenced by local path and points
// the markdown at their media library URLs. Remote and data: URLs are kept.
func (p *Publisher) replaceMarkdownImages(ctx context.Context, md, mdPath string) (string, error) {
	matches := imgPattern.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		return md, nil
	}

	baseDir := filepath.Dir(mdPath)
	var builder strings.Builder
	last := 0
	for _, match := range matches {
		if len(match) < 4 {
			continue
		}
		start, end := match[2], match[3]
		builder.WriteString(md[last:start])
		last = end
		imgRef := strings.TrimSpace(md[start:end])
		if strings.HasPrefix(imgRef, "http://") || strings.HasPrefix(imgRef, "https://") || strings.HasPrefix(imgRef, "data:") {
			builder.WriteString(imgRef)
			continue
		}
		localPath := imgRef
		if !filepath.IsAbs(localPath) {
			if _, statErr := os.Stat(localPath); statErr != nil {
				localPath = filepath.Join(baseDir, imgRef)
			}
		}
		m, err := p.uploadLocalImage(ctx, localPath)
		if err != nil {
			return "", err
		}
		builder.WriteString(m.SourceURL)
	}
	builder.WriteString(md[last:])
	return builder.String(), nil
}
