package cmd

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/fast-dispatch/config"
	"github.com/searchktools/fast-dispatch/core"
	"github.com/searchktools/fast-dispatch/core/http"
	"github.com/searchktools/fast-dispatch/core/middleware"
	"github.com/searchktools/fast-dispatch/core/router"
)

// registerRoutes installs the built-in routes served by `fastdispatch serve`
func registerRoutes(e *core.Engine, cfg *config.Config, logger *zerolog.Logger) error {
	if err := e.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.CORS(middleware.CORSConfig{}),
	); err != nil {
		return err
	}

	routes := []struct {
		method  http.Method
		path    string
		handler http.Handler
		steps   []middleware.Step
	}{
		{http.MethodGet, "/home", home, nil},
		{http.MethodPost, "/admin", admin, []middleware.Step{
			middleware.RequireHeader("Authorization", 401),
			requireRole("admin"),
		}},
		{http.MethodGet, "/users/{id}", user, nil},
		{http.MethodGet, "/files/{*}", files(cfg.PublicDir), nil},
		{http.MethodGet, "/stats", stats(e), nil},
		{http.MethodGet, "/version", version, nil},
		{http.MethodGet, "/", root, nil},
	}
	for _, r := range routes {
		if err := e.HandleIfAbsent(r.method, r.path, r.handler, r.steps...); err != nil {
			return err
		}
	}

	e.NotFound(func(req *http.Request) http.Resolution {
		return http.Error(404, "no route for "+req.Method.String()+" "+req.Path, http.ErrorJSON)
	})
	return nil
}

func home(*http.Request) http.Resolution {
	return http.Status(200)
}

func root(*http.Request) http.Resolution {
	res, err := http.Redirect(302, "/home")
	if err != nil {
		return http.Error(500, err.Error(), http.ErrorPlain)
	}
	return res
}

// requireRole rejects requests whose X-Role header differs from role
func requireRole(role string) middleware.Step {
	return func(req *http.Request) middleware.Outcome {
		if req.Header("X-Role") != role {
			return middleware.InvalidEmpty(403)
		}
		return middleware.Next()
	}
}

func admin(req *http.Request) http.Resolution {
	id, _ := req.Get(middleware.RequestIDKey)
	return http.JSON(200, map[string]any{
		"message":    "welcome",
		"request_id": id,
		"bytes":      len(req.Body),
	})
}

func user(req *http.Request) http.Resolution {
	return http.JSON(200, map[string]string{
		"id":     req.Param("id"),
		"fields": req.Query("fields"),
	})
}

// files serves paths below dir; the cleaned rooted path keeps ".." segments
// from escaping it
func files(dir string) http.Handler {
	return func(req *http.Request) http.Resolution {
		rel := filepath.Clean("/" + req.Param(router.WildcardParam))
		return http.File(filepath.Join(dir, filepath.FromSlash(rel)))
	}
}

func stats(e *core.Engine) http.Handler {
	return func(req *http.Request) http.Resolution {
		s := e.Stats()
		if req.Query("format") == "text" {
			return http.Text(200, s.Text())
		}
		return http.Bytes(200, http.ContentTypeJSON, []byte(s.JSON()))
	}
}

// version answers in protobuf when asked, protobuf JSON otherwise
func version(req *http.Request) http.Resolution {
	msg, err := structpb.NewStruct(map[string]any{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	})
	if err != nil {
		return http.Error(500, err.Error(), http.ErrorJSON)
	}
	if req.Header("Accept") == http.ContentTypeProtobuf {
		return http.Proto(200, msg)
	}
	return http.ProtoJSON(200, msg)
}
