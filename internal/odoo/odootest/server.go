// Package odootest provides an in-process fake of the Odoo XML-RPC API.
package odootest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/xmlrpc"
)

const (
	Database = "test"
	Username = "bridge@example.com"
	Password = "secret"
)

// Handler serves one model method. Returning a *xmlrpc.Fault sends that
// fault; any other error becomes a fault with code 1.
type Handler func(args []any, kwargs map[string]any) (any, error)

type Call struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	uid        int
	httpStatus int
	handlers   map[string]Handler
	calls      []Call
	authCount  int
}

func NewServer(t testing.TB) *Server {
	s := &Server{
		uid:      2,
		handlers: make(map[string]Handler),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Config returns client settings pointing at the fake.
func (s *Server) Config() config.OdooConfig {
	return config.OdooConfig{
		URL:      s.URL,
		Database: Database,
		Username: Username,
		Password: Password,
		Timeout:  5 * time.Second,
	}
}

func (s *Server) Handle(model, method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[model+"."+method] = h
}

// SetUID sets the uid returned by authenticate. Zero rejects every login.
func (s *Server) SetUID(uid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = uid
}

// SetHTTPStatus makes every request fail with code. Zero restores service.
func (s *Server) SetHTTPStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpStatus = code
}

func (s *Server) AuthCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCount
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of model.method.
func (s *Server) CallsTo(model, method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.httpStatus
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	method, params, err := xmlrpc.DecodeCall(body)
	if err != nil {
		writeFault(w, &xmlrpc.Fault{Code: 400, String: err.Error()})
		return
	}

	var res any
	switch r.URL.Path {
	case "/xmlrpc/2/common":
		res, err = s.authenticate(method, params)
	case "/xmlrpc/2/object":
		res, err = s.execute(method, params)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		var fault *xmlrpc.Fault
		if !errors.As(err, &fault) {
			fault = &xmlrpc.Fault{Code: 1, String: err.Error()}
		}
		writeFault(w, fault)
		return
	}

	out, err := xmlrpc.EncodeResponse(res)
	if err != nil {
		writeFault(w, &xmlrpc.Fault{Code: 500, String: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(out)
}

func (s *Server) authenticate(method string, params []any) (any, error) {
	if method != "authenticate" || len(params) != 4 {
		return nil, fmt.Errorf("unexpected common call %s/%d", method, len(params))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCount++
	if s.uid <= 0 || params[0] != Database || params[1] != Username || params[2] != Password {
		return false, nil
	}
	return s.uid, nil
}

func (s *Server) execute(method string, params []any) (any, error) {
	if method != "execute_kw" || len(params) != 7 {
		return nil, fmt.Errorf("unexpected object call %s/%d", method, len(params))
	}

	s.mu.Lock()
	uid := s.uid
	s.mu.Unlock()
	if params[1] != uid || params[2] != Password {
		return nil, &xmlrpc.Fault{Code: 3, String: "Access Denied"}
	}

	model, _ := params[3].(string)
	name, _ := params[4].(string)
	args, _ := params[5].([]any)
	kwargs, _ := params[6].(map[string]any)

	s.mu.Lock()
	s.calls = append(s.calls, Call{Model: model, Method: name, Args: args, Kwargs: kwargs})
	h, ok := s.handlers[model+"."+name]
	s.mu.Unlock()
	if !ok {
		return nil, &xmlrpc.Fault{Code: 2, String: fmt.Sprintf("no handler for %s.%s", model, name)}
	}
	return h(args, kwargs)
}

func writeFault(w http.ResponseWriter, f *xmlrpc.Fault) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(xmlrpc.EncodeFault(f.Code, f.String))
}

// IDs returns the id list passed as the first positional argument.
func IDs(args []any) []int {
	if len(args) == 0 {
		return nil
	}
	list, _ := args[0].([]any)
	out := make([]int, 0, len(list))
	for _, v := range list {
		if n, ok := v.(int); ok {
			out = append(out, n)
		}
	}
	return out
}

// DomainValue returns the value of the first condition on field in a search
// domain passed as the first positional argument.
func DomainValue(args []any, field string) (any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	domain, _ := args[0].([]any)
	for _, term := range domain {
		cond, ok := term.([]any)
		if ok && len(cond) == 3 && cond[0] == field {
			return cond[2], true
		}
	}
	return nil, false
}
