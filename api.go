package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/profprotonn/protonbot/store"
)

func (robo *Robot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	robo.routes(ctx, mux)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// routes registers the command management and restart routes.
// The restart handler uses ctx rather than the request context so that the
// reconnect isn't canceled when the client goes away.
func (robo *Robot) routes(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("POST /commands", robo.apiCreate)
	mux.HandleFunc("GET /commands/{channel}", robo.apiList)
	mux.HandleFunc("PUT /commands/{id}", robo.apiUpdate)
	mux.HandleFunc("DELETE /commands/{id}", robo.apiDelete)
	mux.HandleFunc("GET /restart/{password}", func(w http.ResponseWriter, r *http.Request) {
		robo.apiRestart(ctx, w, r)
	})
}

// statusWriter records the status of a response for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// begin starts handling an API request, returning the request logger and a
// function to finish the request.
func (robo *Robot) begin(w http.ResponseWriter, r *http.Request, name string) (*statusWriter, *slog.Logger, func()) {
	ctx := r.Context()
	log := slog.With(slog.String("api", name), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	sw.Header().Set("Content-Type", "application/json")
	return sw, log, func() {
		robo.metrics.APICount.Observe(1, name, strconv.Itoa(sw.status))
		log.InfoContext(ctx, "done", slog.Int("status", sw.status))
	}
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

// storeerror writes the error response for a store failure.
func storeerror(w http.ResponseWriter, log *slog.Logger, ctx context.Context, err error) {
	switch {
	case errors.Is(err, store.ErrMissing), errors.Is(err, store.ErrInvalid):
		log.WarnContext(ctx, "bad request", slog.Any("err", err))
		jsonerror(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.InfoContext(ctx, "not found", slog.Any("err", err))
		jsonerror(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		log.WarnContext(ctx, "conflict", slog.Any("err", err))
		jsonerror(w, http.StatusConflict, err.Error())
	default:
		log.ErrorContext(ctx, "store failed", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, "store failed")
	}
}

func writejson(w http.ResponseWriter, log *slog.Logger, ctx context.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

// readjson decodes a request body of at most 64 KB.
func readjson(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("couldn't read body: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("couldn't decode body: %w", err)
	}
	return nil
}

func (robo *Robot) apiCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sw, log, done := robo.begin(w, r, "create")
	defer done()
	var cmd store.Command
	if err := readjson(r, &cmd); err != nil {
		log.WarnContext(ctx, "bad request", slog.Any("err", err))
		jsonerror(sw, http.StatusBadRequest, err.Error())
		return
	}
	c, err := robo.store.Upsert(ctx, cmd.Channel, cmd.Trigger, cmd.Response, cmd.RequiresMod)
	if err != nil {
		storeerror(sw, log, ctx, err)
		return
	}
	log.InfoContext(ctx, "upsert", slog.String("id", c.ID), slog.String("channel", c.Channel), slog.String("command", c.Trigger))
	writejson(sw, log, ctx, c)
}

func (robo *Robot) apiList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sw, log, done := robo.begin(w, r, "list")
	defer done()
	cmds, err := robo.store.ListByChannel(ctx, r.PathValue("channel"))
	if err != nil {
		storeerror(sw, log, ctx, err)
		return
	}
	if cmds == nil {
		cmds = []store.Command{}
	}
	writejson(sw, log, ctx, cmds)
}

func (robo *Robot) apiUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sw, log, done := robo.begin(w, r, "update")
	defer done()
	var p store.Patch
	if err := readjson(r, &p); err != nil {
		log.WarnContext(ctx, "bad request", slog.Any("err", err))
		jsonerror(sw, http.StatusBadRequest, err.Error())
		return
	}
	c, err := robo.store.UpdateByID(ctx, r.PathValue("id"), p)
	if err != nil {
		storeerror(sw, log, ctx, err)
		return
	}
	log.InfoContext(ctx, "update", slog.String("id", c.ID))
	writejson(sw, log, ctx, c)
}

func (robo *Robot) apiDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sw, log, done := robo.begin(w, r, "delete")
	defer done()
	c, err := robo.store.DeleteByID(ctx, r.PathValue("id"))
	if err != nil {
		storeerror(sw, log, ctx, err)
		return
	}
	log.InfoContext(ctx, "delete", slog.String("id", c.ID))
	writejson(sw, log, ctx, c)
}

func (robo *Robot) apiRestart(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sw, log, done := robo.begin(w, r, "restart")
	defer done()
	want := robo.cfg.HTTP.RestartPassword
	got := r.PathValue("password")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		log.WarnContext(r.Context(), "wrong restart password")
		jsonerror(sw, http.StatusForbidden, "forbidden")
		return
	}
	robo.restart(ctx)
	writejson(sw, log, r.Context(), map[string]string{"status": "restarted"})
}
