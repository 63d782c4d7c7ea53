// Package endpoint describes remote callables and how their arguments and
// results are serialized.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// Codec converts between caller values and the wire data list.
type Codec interface {
	Serialize(args []any) ([]any, error)
	Deserialize(data []any) (core.Output, error)
}

// JSONCodec passes values through unchanged; encoding/json does the rest.
type JSONCodec struct{}

// Serialize returns args as the data list.
func (JSONCodec) Serialize(args []any) ([]any, error) {
	if args == nil {
		return []any{}, nil
	}
	return args, nil
}

// Deserialize returns data as the output.
func (JSONCodec) Deserialize(data []any) (core.Output, error) {
	return core.Output(data), nil
}

// Endpoint is one callable on a remote server.
type Endpoint struct {
	// APIName is the public name, e.g. "/predict". Empty for callables only
	// reachable by FnIndex.
	APIName string

	// FnIndex is the server-side dependency index.
	FnIndex *int

	// UseQueue overrides the server default when non-nil.
	UseQueue *bool

	// Generator marks endpoints that stream partial outputs.
	Generator bool

	// Codec defaults to JSONCodec when nil.
	Codec Codec
}

// Named returns an endpoint addressed by api name.
func Named(apiName string) *Endpoint {
	return &Endpoint{APIName: security.NormalizeAPIName(apiName)}
}

// Indexed returns an endpoint addressed by fn_index.
func Indexed(fnIndex int) *Endpoint {
	return &Endpoint{FnIndex: &fnIndex}
}

// Validate checks that the endpoint can be addressed.
func (e *Endpoint) Validate() error {
	if e.APIName == "" && e.FnIndex == nil {
		return fmt.Errorf("%w: endpoint needs an api name or fn_index", core.ErrUnknownEndpoint)
	}
	if e.APIName != "" {
		if err := security.ValidateAPIName(e.APIName); err != nil {
			return err
		}
	}
	if e.FnIndex != nil && *e.FnIndex < 0 {
		return fmt.Errorf("%w: negative fn_index %d", core.ErrUnknownEndpoint, *e.FnIndex)
	}
	return nil
}

// Name returns a display name.
func (e *Endpoint) Name() string {
	if e.APIName != "" {
		return e.APIName
	}
	if e.FnIndex != nil {
		return fmt.Sprintf("fn_index=%d", *e.FnIndex)
	}
	return ""
}

// Path returns the submission route relative to the server root.
func (e *Endpoint) Path() string {
	if e.APIName != "" {
		return protocol.PathRunPrefix + "/" + url.PathEscape(strings.TrimPrefix(e.APIName, "/"))
	}
	return protocol.PathPredict
}

// GetCodec returns the endpoint codec or the JSON default.
func (e *Endpoint) GetCodec() Codec {
	if e.Codec == nil {
		return JSONCodec{}
	}
	return e.Codec
}

// FromConfig builds endpoints from a server config.
func FromConfig(cfg *protocol.ConfigResponse) []*Endpoint {
	eps := make([]*Endpoint, 0, len(cfg.Dependencies))
	for _, dep := range cfg.Dependencies {
		idx := dep.ID
		ep := &Endpoint{
			FnIndex:   &idx,
			Generator: dep.Types.Generator,
		}
		if dep.APIName != "" {
			ep.APIName = security.NormalizeAPIName(string(dep.APIName))
		}
		if dep.Queue != nil {
			q := *dep.Queue
			ep.UseQueue = &q
		} else if !cfg.EnableQueue {
			q := false
			ep.UseQueue = &q
		}
		eps = append(eps, ep)
	}
	return eps
}

// Set is a lookup table of endpoints.
type Set struct {
	byName  map[string]*Endpoint
	byIndex map[int]*Endpoint
	all     []*Endpoint
}

// NewSet indexes endpoints by api name and fn_index.
func NewSet(eps []*Endpoint) *Set {
	s := &Set{
		byName:  make(map[string]*Endpoint),
		byIndex: make(map[int]*Endpoint),
		all:     eps,
	}
	for _, ep := range eps {
		if ep.APIName != "" {
			s.byName[ep.APIName] = ep
		}
		if ep.FnIndex != nil {
			s.byIndex[*ep.FnIndex] = ep
		}
	}
	return s
}

// Lookup finds an endpoint by api name, with or without the leading slash.
func (s *Set) Lookup(apiName string) (*Endpoint, error) {
	ep, ok := s.byName[security.NormalizeAPIName(apiName)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEndpoint, apiName)
	}
	return ep, nil
}

// LookupIndex finds an endpoint by fn_index.
func (s *Set) LookupIndex(fnIndex int) (*Endpoint, error) {
	ep, ok := s.byIndex[fnIndex]
	if !ok {
		return nil, fmt.Errorf("%w: fn_index %d", core.ErrUnknownEndpoint, fnIndex)
	}
	return ep, nil
}

// All returns the endpoints in config order.
func (s *Set) All() []*Endpoint {
	out := make([]*Endpoint, len(s.all))
	copy(out, s.all)
	return out
}
