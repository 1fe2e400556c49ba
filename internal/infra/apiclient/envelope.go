package apiclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"storefront-checkout/internal/domain/model"

	"github.com/tidwall/gjson"
)

// ParseEnvelope normalizes a 2xx body: success, else valid, else true;
// data, else the whole body; message, else error.
func ParseEnvelope(status int, body []byte) (*model.Envelope, error) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil, ErrBadBody
	}
	res := gjson.ParseBytes(body)
	env := &model.Envelope{Success: true, Data: json.RawMessage(body), Status: status}
	if !res.IsObject() {
		return env, nil
	}
	if v := res.Get("success"); v.Exists() {
		env.Success = v.Bool()
	} else if v := res.Get("valid"); v.Exists() {
		env.Success = v.Bool()
	}
	if d := res.Get("data"); d.Exists() {
		env.Data = json.RawMessage(d.Raw)
	}
	env.Message = messageOf(res)
	return env, nil
}

func messageOf(res gjson.Result) string {
	if m := res.Get("message"); m.Type == gjson.String && m.Str != "" {
		return m.Str
	}
	e := res.Get("error")
	switch {
	case e.Type == gjson.String:
		return e.Str
	case e.IsObject():
		if m := e.Get("message"); m.Exists() {
			return m.String()
		}
		return e.Get("description").String()
	}
	return ""
}

// encodePayload turns payload into a JSON body, or query values for GET.
func encodePayload(method string, payload any) ([]byte, url.Values, error) {
	if payload == nil {
		return nil, nil, nil
	}
	if method == "GET" || method == "HEAD" {
		q, err := toQuery(payload)
		return nil, q, err
	}
	switch v := payload.(type) {
	case []byte:
		return v, nil, nil
	case json.RawMessage:
		return v, nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return b, nil, nil
}

func toQuery(payload any) (url.Values, error) {
	switch v := payload.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		q := url.Values{}
		for k, s := range v {
			q.Set(k, s)
		}
		return q, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(b)
	if !res.IsObject() {
		return nil, fmt.Errorf("query payload must be an object, got %s", strings.TrimSpace(res.Type.String()))
	}
	q := url.Values{}
	res.ForEach(func(k, v gjson.Result) bool {
		if v.IsArray() {
			for _, item := range v.Array() {
				q.Add(k.String(), item.String())
			}
			return true
		}
		if v.Type != gjson.Null {
			q.Set(k.String(), v.String())
		}
		return true
	})
	return q, nil
}
