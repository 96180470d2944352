package intercept

import "net/http"

// Normalize hides which source answered a same-origin request: such callers
// get a fresh response bound to their own request. Other modes get the
// response as is.
func Normalize(response *http.Response, d Descriptor) *http.Response {
	if d.Mode() != ModeSameOrigin {
		return response
	}

	return &http.Response{
		Status:        response.Status,
		StatusCode:    response.StatusCode,
		Proto:         response.Proto,
		ProtoMajor:    response.ProtoMajor,
		ProtoMinor:    response.ProtoMinor,
		Header:        response.Header.Clone(),
		Body:          response.Body,
		ContentLength: response.ContentLength,
		// Trailers are filled in while the body is read, so share the map
		Trailer: response.Trailer,
		Request: d.request,
	}
}
