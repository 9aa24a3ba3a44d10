package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/httpapi/problem"
)

// handleYoink implements GET /yoink/{id}: it streams the buffered file
// back to the client, preserving Content-Type.
func (d *Deps) handleYoink(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := backbone.ParseFileId(idStr)
	if err != nil {
		writeProblem(w, problem.New(http.StatusNotFound).
			WithTitle("File not found").
			WithDetail("The id is not a well-formed file identifier").
			WithInstance("/yoink/"+idStr).
			WithValue("id", idStr))
		return
	}

	if d.recentYoinks != nil {
		if _, known := d.recentYoinks.Get(idStr); known {
			writeProblem(w, problem.New(http.StatusNotFound).
				WithTitle("File not found").
				WithDetail("The file with ID "+idStr+" could not be found").
				WithInstance("/yoink/"+idStr).
				WithValue("id", idStr))
			return
		}
	}

	reader, summary, err := d.Registry.GetFile(id)
	if err != nil {
		if d.recentYoinks != nil && shouldCacheAsUnknown(err) {
			d.recentYoinks.Add(idStr, struct{}{})
		}
		writeGetFileError(w, idStr, err)
		return
	}
	defer reader.Close()

	if summary != nil && summary.ContentType != "" {
		w.Header().Set("Content-Type", summary.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// shouldCacheAsUnknown reports whether err represents a confirmed
// "never existed" outcome, the only outcome safe to remember in
// recentYoinks. "expired" must keep returning 410 until reap actually
// completes, and "error" is transient, so caching either would turn a
// later, legitimate response into a false 404.
func shouldCacheAsUnknown(err error) bool {
	gerr, ok := err.(*backbone.GetReaderError)
	return ok && gerr.Kind == "unknown"
}

func writeGetFileError(w http.ResponseWriter, idStr string, err error) {
	gerr, ok := err.(*backbone.GetReaderError)
	if !ok {
		writeProblem(w, problem.New(http.StatusInternalServerError).
			WithTitle("Unable to process file").
			WithDetail(err.Error()).
			WithInstance("/yoink/"+idStr).
			WithValue("id", idStr))
		return
	}

	switch gerr.Kind {
	case "expired":
		writeProblem(w, problem.New(http.StatusGone).
			WithTitle("File not found").
			WithDetail("The file with ID "+idStr+" has expired").
			WithInstance("/yoink/"+idStr).
			WithValue("id", idStr))
	case "error":
		d := problem.New(http.StatusInternalServerError).
			WithTitle("Unable to process file").
			WithInstance("/yoink/"+idStr).
			WithValue("id", idStr)
		if gerr.Cause != nil {
			d = d.WithDetail(gerr.Cause.Error()).WithValue("error", gerr.Cause.Error())
		}
		writeProblem(w, d)
	default:
		writeProblem(w, problem.New(http.StatusNotFound).
			WithTitle("File not found").
			WithDetail("The file with ID "+idStr+" could not be found").
			WithInstance("/yoink/"+idStr).
			WithValue("id", idStr))
	}
}

func writeProblem(w http.ResponseWriter, d *problem.Details) {
	d.WriteTo(w)
}
