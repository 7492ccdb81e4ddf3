// Package blog serves posts stored as YAML documents in the extension's
// posts directory.
//
// Actions:
//
//	index          list every post, newest first
//	show <slug>    render one post
//
// The parsed posts are kept in the cache store under "blog.posts.<namespace>".
package blog

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/infernum/internal/cache"
	"github.com/specialistvlad/infernum/internal/container"
	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/specialistvlad/infernum/internal/extension"
	"github.com/specialistvlad/infernum/internal/kernel"
	"github.com/specialistvlad/infernum/internal/loader"
	"github.com/specialistvlad/infernum/internal/view"
)

// Name is the extension name the installation manifest must use.
const Name = "blog"

// PostsDir is the directory below the extension holding the posts.
const PostsDir = "posts"

// postsLifetime bounds how long an edited post may stay stale.
const postsLifetime = 5 * time.Minute

//go:embed templates
var templates embed.FS

// Post is one blog entry.
type Post struct {
	Slug      string    `yaml:"slug" msgpack:"slug"`
	Title     string    `yaml:"title" msgpack:"title"`
	Author    string    `yaml:"author" msgpack:"author"`
	Published time.Time `yaml:"published" msgpack:"published"`
	Tags      []string  `yaml:"tags" msgpack:"tags"`
	Body      string    `yaml:"body" msgpack:"body"`
}

// Package registers the blog module.
type Package struct{}

// Register implements extension.Package.
func (p *Package) Register(r *extension.Registry) {
	r.RegisterModule(Name, New)
}

// Module serves the blog actions of one route. The "layout" extra is passed
// to the views.
type Module struct {
	meta  *extension.Meta
	extra map[string]string
}

// New is the module factory.
func New(meta *extension.Meta, extra map[string]string) (extension.Module, error) {
	return &Module{meta: meta, extra: extra}, nil
}

// LoadPosts reads every *.yaml file in dir. A post without a slug takes the
// file name. Posts are returned newest first.
func LoadPosts(dir string) ([]Post, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var post Post
		if err := yaml.Unmarshal(raw, &post); err != nil {
			return nil, fmt.Errorf("failed to parse post %s: %w", p, err)
		}
		if post.Slug == "" {
			post.Slug = strings.TrimSuffix(filepath.Base(p), ".yaml")
		}
		if prev, dup := seen[post.Slug]; dup {
			return nil, fmt.Errorf("post slug %q is used by both %s and %s", post.Slug, prev, p)
		}
		seen[post.Slug] = p
		posts = append(posts, post)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Published.Equal(posts[j].Published) {
			return posts[i].Published.After(posts[j].Published)
		}
		return posts[i].Slug < posts[j].Slug
	})
	return posts, nil
}

func (m *Module) posts(ctx context.Context, app extension.Application) ([]Post, error) {
	store, err := container.Lookup[cache.Store](app.Services(), kernel.ServiceCache)
	if err != nil {
		return nil, err
	}
	return cache.Remember(ctx, store, "blog.posts."+m.meta.Namespace, postsLifetime, func(ctx context.Context) ([]Post, error) {
		ctxlog.FromContext(ctx).Debug("Reading blog posts.", "dir", filepath.Join(m.meta.Path, PostsDir))
		return LoadPosts(filepath.Join(m.meta.Path, PostsDir))
	})
}

type pageData struct {
	SiteTitle string
	Layout    string
	Posts     []Post
	Post      *Post
}

// Run implements extension.Module.
func (m *Module) Run(ctx context.Context, app extension.Application, req *http.Request, action string, args []string) (*extension.Response, error) {
	posts, err := m.posts(ctx, app)
	if err != nil {
		return nil, err
	}
	data := pageData{
		SiteTitle: app.Setting("site.title", ""),
		Layout:    m.extra["layout"],
	}

	switch action {
	case "index":
		data.Posts = posts
	case "show":
		if len(args) != 1 {
			return notFound(), nil
		}
		for i := range posts {
			if posts[i].Slug == args[0] {
				data.Post = &posts[i]
				break
			}
		}
		if data.Post == nil {
			return notFound(), nil
		}
	default:
		return notFound(), nil
	}

	body, err := m.render(app, action, data)
	if err != nil {
		return nil, err
	}
	return extension.NewResponse(body, http.StatusOK), nil
}

func notFound() *extension.Response {
	return extension.NewResponse([]byte(http.StatusText(http.StatusNotFound)), http.StatusNotFound)
}

// render prefers a view installed under the extension's namespace and falls
// back to the compiled-in template.
func (m *Module) render(app extension.Application, action string, data pageData) ([]byte, error) {
	if ld, err := container.Lookup[*loader.Loader](app.Services(), kernel.ServiceLoader); err == nil {
		body, err := view.NewRenderer(ld).Render("@"+m.meta.Namespace+"/"+action, data)
		if err == nil || !errors.Is(err, view.ErrNotFound) {
			return body, err
		}
	}

	tmpl, err := template.ParseFS(templates, "templates/"+action+".html")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", action, err)
	}
	return buf.Bytes(), nil
}
