package local

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
)

// Uploads through the gateway are limited to this size.
const maxUploadSize = 64 << 20

type presignClaims struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Op     string `json:"op"`
	jwt.RegisteredClaims
}

func (s *localStorage) PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	if _, err := s.blobPath(bucket, key); err != nil {
		return "", err
	}
	var route string
	switch op {
	case objstore.OperationRead:
		route = "/read/"
	case objstore.OperationWrite:
		route = "/write/"
	default:
		return "", objstore.Errorf(objstore.InvalidArgument, nil, "unknown presign operation %v", op)
	}

	now := s.now()
	claims := presignClaims{
		Bucket: bucket,
		Key:    key,
		Op:     op.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", objstore.Errorf(objstore.Internal, err, "failed to sign url")
	}
	return s.baseURL + route + token, nil
}

// parseToken checks the signature and expiry of token and that it grants op.
func (s *localStorage) parseToken(token string, op objstore.Operation) (*presignClaims, error) {
	claims := &presignClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, objstore.Errorf(objstore.PermissionDenied, err, "url has expired")
	} else if err != nil {
		return nil, objstore.Errorf(objstore.PermissionDenied, err, "url signature is not valid")
	}
	if claims.Op != op.String() {
		return nil, objstore.Errorf(objstore.PermissionDenied, nil, "url does not grant %s access", op)
	}
	return claims, nil
}

// MountPath is the path component of the configured base URL.
func (s *localStorage) MountPath() string {
	u, err := url.Parse(s.baseURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Routes serves presigned URLs. It is mounted at MountPath on the gateway.
func (s *localStorage) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/read/{token}", s.handleRead)
	r.Put("/write/{token}", s.handleWrite)
	return r
}

func (s *localStorage) handleRead(w http.ResponseWriter, r *http.Request) {
	claims, err := s.parseToken(chi.URLParam(r, "token"), objstore.OperationRead)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	data, err := s.Read(r.Context(), claims.Bucket, claims.Key)
	if err != nil {
		s.renderError(w, r, objstore.Scope(err, "read", claims.Bucket, claims.Key))
		return
	}
	w.Header().Set("Content-Type", srk.DetectContentType(claims.Key, data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *localStorage) handleWrite(w http.ResponseWriter, r *http.Request) {
	claims, err := s.parseToken(chi.URLParam(r, "token"), objstore.OperationWrite)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	r.Body.Close()
	if err != nil {
		s.renderError(w, r, objstore.Errorf(objstore.InvalidArgument, err, "failed to read request body"))
		return
	}
	if err := s.Write(r.Context(), claims.Bucket, claims.Key, body); err != nil {
		s.renderError(w, r, objstore.Scope(err, "write", claims.Bucket, claims.Key))
		return
	}
	render.Render(w, r, &statusResponse{HTTPStatusCode: http.StatusOK, Status: "ok"})
}

type statusResponse struct {
	HTTPStatusCode int    `json:"-"`
	Status         string `json:"status"`
}

func (sr *statusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, sr.HTTPStatusCode)
	return nil
}

type errResponse struct {
	HTTPStatusCode int    `json:"-"`
	ErrorType      string `json:"errorType"`
	ErrorMessage   string `json:"errorMessage"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func (s *localStorage) renderError(w http.ResponseWriter, r *http.Request, err error) {
	resp := &errResponse{HTTPStatusCode: http.StatusInternalServerError, ErrorMessage: "internal storage error"}
	var e *objstore.Error
	if errors.As(err, &e) {
		resp.ErrorType = e.Kind.String()
		if e.Msg != "" {
			resp.ErrorMessage = e.Msg
		}
		switch e.Kind {
		case objstore.InvalidArgument:
			resp.HTTPStatusCode = http.StatusBadRequest
		case objstore.NotFound:
			resp.HTTPStatusCode = http.StatusNotFound
		case objstore.PermissionDenied:
			resp.HTTPStatusCode = http.StatusForbidden
		}
	}
	s.log.WithField("path", r.URL.Path).WithError(err).Warn("presigned request rejected")
	render.Render(w, r, resp)
}
