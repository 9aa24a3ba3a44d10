package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/httpapi/problem"
)

// successfulUpload is the response body of POST /yeet.
type successfulUpload struct {
	ID            string `json:"id"`
	FileSizeBytes uint64 `json:"file_size_bytes"`
	Hashes        hashes `json:"hashes"`
}

type hashes struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// handleYeet implements POST /yeet: it streams the request body to the
// backbone, hashing as it goes, and reports the resulting FileSummary.
func (d *Deps) handleYeet(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var expectedMD5 []byte
	if header := r.Header.Get("Content-MD5"); header != "" {
		decoded, err := decodeContentMD5(header)
		if err != nil {
			writeProblem(w, problem.New(http.StatusBadRequest).
				WithTitle("Malformed Content-MD5").
				WithDetail("Content-MD5 is not a valid base64-encoded 128-bit digest: "+err.Error()).
				WithInstance("/yeet"))
			return
		}
		expectedMD5 = decoded
	}

	id, writer, err := d.Registry.NewFile(contentType, expectedMD5)
	if err != nil {
		writeNewFileError(w, err)
		return
	}
	idStr := id.String()

	buf := make([]byte, 64*1024)
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			if _, writeErr := writer.Write(buf[:n]); writeErr != nil {
				writer.Abort(writeErr)
				writeProblem(w, problem.New(http.StatusInternalServerError).
					WithTitle("Unable to process upload").
					WithDetail("failed to write to temporary file: "+writeErr.Error()).
					WithInstance("/yeet").
					WithValue("id", idStr))
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			writer.Abort(readErr)
			writeProblem(w, problem.New(http.StatusInternalServerError).
				WithTitle("Unable to process upload").
				WithDetail("failed to read request body: "+readErr.Error()).
				WithInstance("/yeet").
				WithValue("id", idStr))
			return
		}
	}

	if err := writer.SyncData(); err != nil {
		writeProblem(w, problem.New(http.StatusInternalServerError).
			WithTitle("Unable to process upload").
			WithDetail("failed to flush temporary file: "+err.Error()).
			WithInstance("/yeet").
			WithValue("id", idStr))
		return
	}

	summary, err := writer.Finalize(backbone.NoSync)
	if err != nil {
		if err == backbone.ErrChecksumMismatch {
			writeProblem(w, problem.New(http.StatusBadRequest).
				WithTitle("Checksum mismatch").
				WithDetail("Content-MD5 did not match the uploaded content").
				WithInstance("/yeet").
				WithValue("id", idStr))
			return
		}
		writeProblem(w, problem.New(http.StatusInternalServerError).
			WithTitle("Unable to process upload").
			WithDetail("failed to complete upload: "+err.Error()).
			WithInstance("/yeet").
			WithValue("id", idStr))
		return
	}

	body := successfulUpload{
		ID:            idStr,
		FileSizeBytes: summary.SizeBytes,
		Hashes: hashes{
			MD5:    hex.EncodeToString(summary.Hashes.MD5[:]),
			SHA256: hex.EncodeToString(summary.Hashes.SHA256[:]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Expires", summary.ExpiresAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(body)
}

func writeNewFileError(w http.ResponseWriter, err error) {
	if err == backbone.ErrDuplicateID {
		writeProblem(w, problem.New(http.StatusConflict).
			WithTitle("Duplicate file id").
			WithDetail("the generated file id already exists").
			WithInstance("/yeet"))
		return
	}
	writeProblem(w, problem.New(http.StatusInternalServerError).
		WithTitle("Unable to process upload").
		WithDetail("failed to allocate file: "+err.Error()).
		WithInstance("/yeet"))
}
