// Package problem implements RFC 7807 problem+json error bodies. No
// third-party Go library for problem+json appears anywhere in the example
// pack, so this one corner is built directly against the standard
// library's encoding/json; see DESIGN.md for the justification.
package problem

import (
	"encoding/json"
	"net/http"
)

// Details is an RFC 7807 problem detail document.
type Details struct {
	Type     string                 `json:"type,omitempty"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// New starts building a Details document with the given HTTP status.
func New(status int) *Details {
	return &Details{Status: status}
}

// WithTitle sets the title field and returns the receiver for chaining.
func (d *Details) WithTitle(title string) *Details {
	d.Title = title
	return d
}

// WithDetail sets the detail field and returns the receiver for chaining.
func (d *Details) WithDetail(detail string) *Details {
	d.Detail = detail
	return d
}

// WithInstance sets the instance field and returns the receiver for
// chaining.
func (d *Details) WithInstance(instance string) *Details {
	d.Instance = instance
	return d
}

// WithValue attaches an extension member and returns the receiver for
// chaining.
func (d *Details) WithValue(key string, value interface{}) *Details {
	if d.Extra == nil {
		d.Extra = make(map[string]interface{})
	}
	d.Extra[key] = value
	return d
}

// WriteTo writes the problem document to w as application/problem+json.
func (d *Details) WriteTo(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)

	payload := map[string]interface{}{
		"title":  d.Title,
		"status": d.Status,
	}
	if d.Type != "" {
		payload["type"] = d.Type
	}
	if d.Detail != "" {
		payload["detail"] = d.Detail
	}
	if d.Instance != "" {
		payload["instance"] = d.Instance
	}
	for k, v := range d.Extra {
		payload[k] = v
	}

	_ = json.NewEncoder(w).Encode(payload)
}
