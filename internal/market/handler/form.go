package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/market"
)

// dateLayout is accepted for date-only form fields
const dateLayout = "2006-01-02"

func invalidField(field, message string) error {
	return market.NewValidationError("INVALID_FIELD", field+": "+message)
}

// formUpload reads the single file sent as field, or nil when absent
func formUpload(c *gin.Context, field string) (*filestore.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, invalidField(field, err.Error())
	}
	return readUpload(field, fh)
}

// formUploads reads every file sent under any of fields
func formUploads(c *gin.Context, fields ...string) ([]*filestore.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, invalidField(fields[0], err.Error())
	}
	var uploads []*filestore.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			up, err := readUpload(field, fh)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, up)
		}
	}
	return uploads, nil
}

func readUpload(field string, fh *multipart.FileHeader) (*filestore.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, invalidField(field, err.Error())
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, invalidField(field, err.Error())
	}
	return &filestore.Upload{Filename: fh.Filename, Data: data}, nil
}

// formJSON decodes a JSON encoded form field into v. Absent fields leave v
// untouched and report false.
func formJSON(c *gin.Context, field string, v interface{}) (bool, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, invalidField(field, "must be valid JSON")
	}
	return true, nil
}

func formInt64(c *gin.Context, field string) (int64, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidField(field, "must be an integer")
	}
	return v, nil
}

func formBool(c *gin.Context, field string) (bool, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidField(field, "must be a boolean")
	}
	return v, nil
}

func formDate(c *gin.Context, field string) (*time.Time, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, invalidField(field, "must be a date")
}

// formAvailability accepts either a JSON object or a bare status string
func formAvailability(c *gin.Context) (*market.Availability, error) {
	raw := strings.TrimSpace(c.PostForm("availability"))
	if raw == "" {
		return nil, nil
	}
	availability := &market.Availability{}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), availability); err != nil {
			return nil, invalidField("availability", "must be valid JSON")
		}
		return availability, nil
	}
	availability.Status = raw
	return availability, nil
}

// profileInput reads the descriptive profile fields of a signup or update
func profileInput(c *gin.Context) (service.ProfileInput, error) {
	in := service.ProfileInput{
		FirstName:        c.PostForm("firstName"),
		LastName:         c.PostForm("lastName"),
		ContactEmail:     c.PostForm("contactEmail"),
		Address:          c.PostForm("address"),
		City:             c.PostForm("city"),
		State:            c.PostForm("state"),
		ZipCode:          c.PostForm("zipCode"),
		ShortDescription: c.PostForm("shortDescription"),
		LongDescription:  c.PostForm("longDescription"),
	}

	var err error
	if in.DateOfBirth, err = formDate(c, "dateOfBirth"); err != nil {
		return in, err
	}
	if in.Availability, err = formAvailability(c); err != nil {
		return in, err
	}

	fields := []struct {
		name string
		dst  interface{}
	}{
		{"categories", &in.Categories},
		{"keywords", &in.Keywords},
		{"experience", &in.Experience},
		{"education", &in.Education},
		{"pricing", &in.Pricing},
	}
	for _, f := range fields {
		if _, err := formJSON(c, f.name, f.dst); err != nil {
			return in, err
		}
	}
	return in, nil
}
