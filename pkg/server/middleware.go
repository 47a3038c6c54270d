package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// logRequests tags each request with an id and logs its outcome. Panics are
// recovered into a 500.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		log := logrus.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"remote_ip":  r.RemoteAddr,
		})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				log.WithField("panic", p).Error("panic in handler")
				http.Error(rec, "Internal Server Error", http.StatusInternalServerError)
			}

			log = log.WithFields(logrus.Fields{
				"status":   rec.status,
				"size":     rec.size,
				"duration": time.Since(start),
			})
			switch {
			case rec.status >= 500:
				log.Error("request completed with server error")
			case rec.status >= 400:
				log.Warn("request completed with client error")
			default:
				log.Debug("request completed")
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
