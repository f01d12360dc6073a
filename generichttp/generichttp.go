// Package generichttp contains handler generators that adapt plain getter and
// setter functions to the JSON payloads in package server
package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/dualread/server"
)

// SubMuxSanitize converts a root path into the form chi expects when
// mounting a sub router: a leading slash and no trailing slash.  An empty
// root becomes "/".
func SubMuxSanitize(str string) string {
	str = strings.Trim(strings.TrimSpace(str), "/")
	return "/" + str
}

// WriteError replies with err.  Errors matching one of clientErrs are the
// caller's fault and get 400, anything else is a 500.
func WriteError(w http.ResponseWriter, err error, clientErrs ...error) {
	code := http.StatusInternalServerError
	for _, ce := range clientErrs {
		if errors.Is(err, ce) {
			code = http.StatusBadRequest
			break
		}
	}
	http.Error(w, err.Error(), code)
}

// DecodeBody unmarshals the JSON request body into v, replying 400 and
// returning false if it cannot
func DecodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func apply(w http.ResponseWriter, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.HumanPayload{T: types.Float64, Float: f}.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		if DecodeBody(w, r, &f) {
			apply(w, fcn(f.F64))
		}
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.HumanPayload{T: types.Int, Int: i}.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := server.IntT{}
		if DecodeBody(w, r, &i) {
			apply(w, fcn(i.Int))
		}
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.HumanPayload{T: types.String, String: s}.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		if DecodeBody(w, r, &s) {
			apply(w, fcn(s.Str))
		}
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.HumanPayload{T: types.Bool, Bool: b}.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		if DecodeBody(w, r, &b) {
			apply(w, fcn(b.Bool))
		}
	}
}
