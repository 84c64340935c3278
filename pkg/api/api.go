// пакет api предоставляет маршрутизатор REST API
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rtemka/blog/domain"

	"go.uber.org/zap"
)

var (
	ErrInternal      = errors.New("internal server error")
	ErrBadInput      = errors.New("invalid input")
	ErrRouteNotFound = errors.New("not found")
)

// лимит времени на одну операцию с хранилищем
const opTimeout = 5 * time.Second

type ctxKey int

const (
	requestID ctxKey = iota
)

type wideResponseWriter struct {
	http.ResponseWriter
	length, status int
	internalErr    error
}

func (w *wideResponseWriter) WriteHeader(status int) {
	w.ResponseWriter.WriteHeader(status)
	w.status = status
}

func (w *wideResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return n, err
}

// REST API.
type API struct {
	router *mux.Router
	repo   domain.Repository
	logger *zap.Logger
}

// New возвращает [*API].
func New(db domain.Repository, logger *zap.Logger) *API {
	api := API{
		router: mux.NewRouter(),
		logger: logger,
		repo:   db,
	}
	api.endpoints()
	return &api
}

// ServeHTTP - таким образом, мы можем использовать
// сам [*API] в качестве мультиплексора на сервере.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

// ServeFiles отдает каталог dir со статикой браузерного клиента
// с корня сервера. Маршруты /api имеют приоритет,
// так как зарегистрированы раньше.
func (api *API) ServeFiles(dir string) *API {
	api.router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
	return api
}

func (api *API) endpoints() {
	api.router.Use(
		api.requestIDMiddleware,
		api.wideEventLogMiddleware,
		api.closerMiddleware,
		api.secHeadersMiddleware,
	)

	s := api.router.PathPrefix("/api").Subrouter()
	s.Use(api.headersMiddleware)

	s.HandleFunc("/posts", api.handlePostsRead()).Methods(http.MethodGet, http.MethodOptions)
	s.HandleFunc("/posts", api.handlePostCreate()).Methods(http.MethodPost, http.MethodOptions)
	s.HandleFunc("/posts/{id}/comments", api.handleCommentsRead()).Methods(http.MethodGet, http.MethodOptions)
	s.HandleFunc("/posts/{id}/comments", api.handleCommentCreate()).Methods(http.MethodPost, http.MethodOptions)
	s.HandleFunc("/comments/{id}/approve", api.handleCommentApprove()).Methods(http.MethodPost, http.MethodOptions)
	s.HandleFunc("/mod/pending", api.handlePendingRead()).Methods(http.MethodGet, http.MethodOptions)

	// все прочие пути /api/* отвечают json-ошибкой 404
	s.PathPrefix("/").HandlerFunc(api.handleUnknownRoute)
}

// closerMiddleware считывает и закрывает тело запроса
// для повторного использования TCP-соединения.
func (api *API) closerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	})
}

// requestIDMiddleware извлекает id запроса из параметров запроса.
// В случае если id запроса отсутствует, id генерируется.
// Далее id добавляется в контекст запроса.
func (api *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.URL.Query().Get("request-id")
		if rid == "" {
			rid = uuid.NewString()
		}
		ctxWithID := context.WithValue(r.Context(), requestID, rid)
		rWithID := r.WithContext(ctxWithID)
		next.ServeHTTP(w, rWithID)
	})
}

// wideEventLogMiddleware собирает и регистрирует информацию о полученном запросе.
func (api *API) wideEventLogMiddleware(next http.Handler) http.Handler {

	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {

			wideWriter := &wideResponseWriter{ResponseWriter: w}

			next.ServeHTTP(wideWriter, r)

			addr, _, _ := net.SplitHostPort(r.RemoteAddr)
			api.logger.Info("request received",
				zap.Any("request_id", r.Context().Value(requestID)),
				zap.Int("status_code", wideWriter.status),
				zap.Int("response_length", wideWriter.length),
				zap.Int64("content_length", r.ContentLength),
				zap.String("method", r.Method),
				zap.String("proto", r.Proto),
				zap.String("remote_addr", addr),
				zap.String("uri", r.RequestURI),
				zap.String("user_agent", r.UserAgent()),
				zap.Error(wideWriter.internalErr),
			)
		},
	)
}

// headersMiddleware задает обычные заголовки для всех ответов /api.
// Ответы API не кешируются: одобрение комментария должно быть
// видно уже следующему публичному чтению.
func (api *API) headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// secHeadersMiddleware устанавливает заголовки безопасности для всех ответов.
func (api *API) secHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (api *API) WriteJSONError(w http.ResponseWriter, err error, code int) {
	w.WriteHeader(code)
	if wrw, ok := w.(*wideResponseWriter); ok {
		wrw.internalErr = err
	}
	if code == http.StatusInternalServerError {
		err = ErrInternal
	}
	msg := map[string]string{"error": err.Error()}
	_ = json.NewEncoder(w).Encode(&msg)
}

func (api *API) WriteJSON(w http.ResponseWriter, data any, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRepoError транслирует ошибку хранилища в код состояния:
// ошибки валидации - вина клиента, отсутствующие записи - 404,
// все остальное - внутренняя ошибка.
func (api *API) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		api.WriteJSONError(w, err, http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		api.WriteJSONError(w, err, http.StatusNotFound)
	default:
		api.WriteJSONError(w, err, http.StatusInternalServerError)
	}
}

// pathID извлекает числовой id из пути запроса.
func pathID(r *http.Request) (int64, error) {
	s := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q must be a positive integer", ErrBadInput, s)
	}
	return id, nil
}

func (api *API) handlePostsRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		posts, err := api.repo.Posts(ctx)
		if err != nil {
			api.WriteJSONError(w, err, http.StatusInternalServerError)
			return
		}
		if posts == nil {
			posts = []domain.Post{}
		}

		api.WriteJSON(w, posts, http.StatusOK)
	}
}

func (api *API) handlePostCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		var p domain.Post
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.WriteJSONError(w, fmt.Errorf("%w: %v", ErrBadInput, err), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		if err := api.repo.AddPost(ctx, &p); err != nil {
			api.writeRepoError(w, err)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/api/posts/%d", p.ID))
		api.WriteJSON(w, p, http.StatusCreated)
	}
}

func (api *API) handleCommentsRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		id, err := pathID(r)
		if err != nil {
			api.WriteJSONError(w, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		coms, err := api.repo.Comments(ctx, id)
		if err != nil {
			api.writeRepoError(w, err)
			return
		}
		if coms == nil {
			coms = []domain.Comment{}
		}

		api.WriteJSON(w, coms, http.StatusOK)
	}
}

func (api *API) handleCommentCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		id, err := pathID(r)
		if err != nil {
			api.WriteJSONError(w, err, http.StatusBadRequest)
			return
		}

		var c domain.Comment
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			api.WriteJSONError(w, fmt.Errorf("%w: %v", ErrBadInput, err), http.StatusBadRequest)
			return
		}
		c.PostID = id

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		if err := api.repo.AddComment(ctx, &c); err != nil {
			api.writeRepoError(w, err)
			return
		}

		w.Header().Set("Location", fmt.Sprintf("/api/comments/%d", c.ID))
		api.WriteJSON(w, c, http.StatusCreated)
	}
}

func (api *API) handleCommentApprove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		id, err := pathID(r)
		if err != nil {
			api.WriteJSONError(w, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		c, err := api.repo.Approve(ctx, id)
		if err != nil {
			api.writeRepoError(w, err)
			return
		}

		api.WriteJSON(w, c, http.StatusOK)
	}
}

func (api *API) handlePendingRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
		defer cancel()
		coms, err := api.repo.Pending(ctx)
		if err != nil {
			api.WriteJSONError(w, err, http.StatusInternalServerError)
			return
		}
		if coms == nil {
			coms = []domain.PendingComment{}
		}

		api.WriteJSON(w, coms, http.StatusOK)
	}
}

func (api *API) handleUnknownRoute(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONError(w, ErrRouteNotFound, http.StatusNotFound)
}
