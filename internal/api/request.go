package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mes-backend/internal/store"
)

const (
	defaultPage    = 1
	defaultPerPage = 30
	maxPerPage     = 100
)

var registerTagName sync.Once

// useJSONFieldNames makes validation errors report the json name of a field.
func useJSONFieldNames() {
	registerTagName.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// bindJSON decodes the body into req and writes a 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	useJSONFieldNames()
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return "Invalid field: " + te.Field
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		if fe.Tag() == "required" {
			return "Missing field: " + fe.Field()
		}
		return "Invalid field: " + fe.Field()
	}
	return "invalid request"
}

// pathID parses the named path parameter as a positive id.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + strings.ReplaceAll(name, "_", " ")})
		return 0, false
	}
	return id, true
}

// page reads page and per_page. Missing or invalid values fall back to the
// defaults; per_page is capped at maxPerPage.
func page(c *gin.Context) store.Page {
	p := store.Page{Number: defaultPage, Size: defaultPerPage}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil && n > 0 {
		p.Size = min(n, maxPerPage)
	}
	return p
}

// writeStoreError maps store errors onto status codes.
func (h *Handler) writeStoreError(c *gin.Context, err error) {
	var nf *store.NotFoundError
	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
