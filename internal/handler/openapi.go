package handler

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/openapi"
)

func datasetDoc(project *model.Project, ds *model.Dataset, baseURL string) *openapi3.T {
	return openapi.GenerateDatasetSpec(project, ds, baseURL)
}

// serverURL derives the public base URL from the request, honoring
// X-Forwarded-Proto behind a proxy.
func serverURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
