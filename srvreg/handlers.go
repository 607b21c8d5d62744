package srvreg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/martin8756/termelesinaplo/repository"
	"github.com/martin8756/termelesinaplo/repository/models"
	"github.com/martin8756/termelesinaplo/session"
)

// flexString accepts a JSON string or number. The value is kept verbatim.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(num.String())
	return nil
}

// flexInt accepts a JSON number or numeric string. Anything that is not a
// non-negative int64 coerces to 0; Set records whether a value was supplied
// at all.
type flexInt struct {
	Value int64
	Set   bool
}

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		// Objects, arrays and booleans count as supplied but non-numeric.
		*n = flexInt{Set: true}
		return nil
	}
	value := strings.TrimSpace(string(s))
	if value == "" {
		*n = flexInt{}
		return nil
	}
	*n = flexInt{Value: coerceInt(value), Set: true}
	return nil
}

func coerceInt(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(v, 0)
	}
	f, err := strconv.ParseFloat(s, 64)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if err != nil || math.IsNaN(f) || f < 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(math.Trunc(f))
}

// decodeBody unmarshals a JSON or urlencoded form body into target
func decodeBody(req *Request, target interface{}) error {
	raw := []byte(req.Body)
	if isFormRequest(req) {
		values, err := url.ParseQuery(req.Body)
		if err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		fields := make(map[string]string, len(values))
		for key := range values {
			fields[key] = values.Get(key)
		}
		raw, err = json.Marshal(fields)
		if err != nil {
			return err
		}
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return json.Unmarshal(raw, target)
}

func isFormRequest(req *Request) bool {
	return strings.HasPrefix(strings.ToLower(req.Headers["Content-Type"]), "application/x-www-form-urlencoded")
}

// storeErrorResponse maps a repository error onto a client response. Storage
// details never reach the client.
func storeErrorResponse(repoErr *repository.RepositoryError) *Response {
	switch repoErr.Code {
	case repository.ErrCodeValidation:
		return errorResponse(http.StatusBadRequest, repoErr.Message)
	case repository.ErrCodeNotFound:
		return errorResponse(http.StatusNotFound, repoErr.Message)
	default:
		return errorResponse(http.StatusInternalServerError, "Internal server error")
	}
}

type loginHandlerBody struct {
	Password flexString `json:"password"`
}

// LoginHandler authenticates the shared admin password and opens a session
func (sr *ServiceRegistry) LoginHandler(req *Request) (*Response, error) {
	var body loginHandlerBody
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid body format"), err
	}
	if body.Password == "" {
		return errorResponse(http.StatusBadRequest, "Password is required"), nil
	}

	token, expires, err := sr.gate.Login(req.Context(), string(body.Password))
	if err != nil {
		if errors.Is(err, session.ErrInvalidPassword) {
			return errorResponse(http.StatusUnauthorized, "Invalid password"), nil
		}
		sr.logger.Error("Failed to create session", "err", err)
		return errorResponse(http.StatusInternalServerError, "Internal server error"), err
	}

	response := jsonResponse(http.StatusOK, envelope{"ok": true})
	response.Cookies = append(response.Cookies, session.NewCookie(token, expires))
	return response, nil
}

// LogoutHandler destroys the caller's session, if any
func (sr *ServiceRegistry) LogoutHandler(req *Request) (*Response, error) {
	if err := sr.gate.Logout(req.Context(), req.SessionToken); err != nil {
		sr.logger.Error("Failed to destroy session", "err", err)
		return errorResponse(http.StatusInternalServerError, "Internal server error"), err
	}
	response := jsonResponse(http.StatusOK, envelope{"ok": true})
	response.Cookies = append(response.Cookies, session.ClearCookie())
	return response, nil
}

type createRecordHandlerBody struct {
	Date     flexString `json:"date"`
	Machine  flexString `json:"machine"`
	Product  flexString `json:"product"`
	Quantity flexInt    `json:"quantity"`
	Rejects  flexInt    `json:"rejects"`
	Scrap    flexInt    `json:"scrap"`
	Note     flexString `json:"note"`
}

// CreateRecordHandler stores a new production record
func (sr *ServiceRegistry) CreateRecordHandler(req *Request) (*Response, error) {
	var body createRecordHandlerBody
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid body format"), err
	}

	date := strings.TrimSpace(string(body.Date))
	machine := strings.TrimSpace(string(body.Machine))
	product := strings.TrimSpace(string(body.Product))
	if date == "" || machine == "" || product == "" || !body.Quantity.Set {
		return errorResponse(http.StatusBadRequest, "Missing required fields: date, machine, product, quantity"), nil
	}

	rejects := body.Rejects
	if !rejects.Set {
		rejects = body.Scrap
	}

	record := &models.Record{
		Date:     date,
		Machine:  machine,
		Product:  product,
		Quantity: body.Quantity.Value,
		Rejects:  rejects.Value,
	}
	if body.Note != "" {
		note := string(body.Note)
		record.Note = &note
	}

	id, repoErr := sr.store.Insert(req.Context(), record)
	if repoErr != nil {
		return storeErrorResponse(repoErr), repoErr
	}

	return jsonResponse(http.StatusCreated, envelope{"ok": true, "id": id}), nil
}

// ListRecordsHandler returns the most recent records
func (sr *ServiceRegistry) ListRecordsHandler(req *Request) (*Response, error) {
	rows, repoErr := sr.store.ListRecent(req.Context(), repository.MaxRows)
	if repoErr != nil {
		return storeErrorResponse(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, envelope{"ok": true, "rows": rows}), nil
}

// AdminRecordsHandler returns filtered records with their totals
func (sr *ServiceRegistry) AdminRecordsHandler(req *Request) (*Response, error) {
	filter := repository.Filter{
		From:    strings.TrimSpace(req.Query.Get("from")),
		To:      strings.TrimSpace(req.Query.Get("to")),
		Machine: strings.TrimSpace(req.Query.Get("machine")),
		Product: strings.TrimSpace(req.Query.Get("product")),
	}

	rows, repoErr := sr.store.QueryFiltered(req.Context(), filter)
	if repoErr != nil {
		return storeErrorResponse(repoErr), repoErr
	}

	return jsonResponse(http.StatusOK, envelope{
		"ok":     true,
		"rows":   rows,
		"totals": repository.ComputeTotals(rows),
	}), nil
}

// DeleteRecordHandler removes one record by id
func (sr *ServiceRegistry) DeleteRecordHandler(req *Request) (*Response, error) {
	id, err := strconv.ParseInt(req.Params["id"], 10, 64)
	if err != nil || id <= 0 {
		return errorResponse(http.StatusBadRequest, "Invalid id"), nil
	}

	if repoErr := sr.store.DeleteByID(req.Context(), id); repoErr != nil {
		if repoErr.IsNotFound() {
			return storeErrorResponse(repoErr), nil
		}
		return storeErrorResponse(repoErr), repoErr
	}

	sr.logger.Info("Record deleted", "id", id)
	return jsonResponse(http.StatusOK, envelope{"ok": true}), nil
}
