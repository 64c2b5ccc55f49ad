package access

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"medgrid.org/internal/ids"
	"medgrid.org/internal/obs"
)

// MultiAssignInput fans one (user, role) pair out across several facilities.
type MultiAssignInput struct {
	UserID            string   `json:"userId"`
	RoleID            string   `json:"roleId"`
	FacilityIDs       []string `json:"facilityIds"`
	SendNotifications bool     `json:"sendNotifications"`
}

// MultiAssignFailure records why one target facility was not assigned.
type MultiAssignFailure struct {
	FacilityID string `json:"facilityId"`
	Reason     string `json:"reason"`
}

// MultiAssignResult reports the fan-out outcome per facility.
type MultiAssignResult struct {
	RequestedAssignments int                  `json:"requestedAssignments"`
	CreatedAssignments   int                  `json:"createdAssignments"`
	Assignments          []Grant              `json:"assignments"`
	Failures             []MultiAssignFailure `json:"failures"`
}

// AssignAcrossFacilities processes each facility independently: a conflict or
// unknown facility is recorded and the remaining facilities still run. An
// unknown user or role fails the whole request, since no facility could
// succeed.
func (s *Service) AssignAcrossFacilities(ctx context.Context, tc TenantContext, in MultiAssignInput) (MultiAssignResult, error) {
	if err := validateMultiAssignInput(in); err != nil {
		return MultiAssignResult{}, err
	}
	user, err := s.dir.FindUser(ctx, in.UserID)
	if err != nil {
		return MultiAssignResult{}, err
	}
	if user.Deleted || !user.Active {
		return MultiAssignResult{}, fmt.Errorf("%w: user %s is not active", ErrInvalidInput, in.UserID)
	}
	role, err := s.dir.FindRole(ctx, in.RoleID)
	if err != nil {
		return MultiAssignResult{}, err
	}

	res := MultiAssignResult{
		RequestedAssignments: len(in.FacilityIDs),
		Assignments:          []Grant{},
		Failures:             []MultiAssignFailure{},
	}
	for _, facilityID := range in.FacilityIDs {
		grant, err := s.assignResolved(ctx, tc, user, role, facilityID)
		if err != nil {
			res.Failures = append(res.Failures, MultiAssignFailure{FacilityID: facilityID, Reason: err.Error()})
			obs.CountBulkRow("failed")
			continue
		}
		res.Assignments = append(res.Assignments, grant)
		res.CreatedAssignments++
		obs.CountBulkRow("created")
		if in.SendNotifications {
			if err := s.notifier.AssignmentCreated(ctx, user.ID, grant.ID); err != nil {
				obs.LogRequest(map[string]any{
					"level": "warn",
					"msg":   "assignment notification failed",
					"grant": grant.ID,
					"error": err.Error(),
				})
			}
		}
	}
	return res, nil
}

func validateMultiAssignInput(in MultiAssignInput) error {
	var violations []string
	if strings.TrimSpace(in.UserID) == "" {
		violations = append(violations, "user id is required")
	}
	if strings.TrimSpace(in.RoleID) == "" {
		violations = append(violations, "role id is required")
	}
	if len(in.FacilityIDs) == 0 {
		violations = append(violations, "at least one facility id is required")
	}
	return newValidationError(violations)
}

// BulkImportInput carries one CSV batch. Delimiter defaults to comma.
type BulkImportInput struct {
	CSVContent          string
	DefaultFacilityID   string
	ForcePasswordChange bool
	SendInviteEmails    bool
	Delimiter           rune
}

// RowResult is the outcome of one data row, appended regardless of prior
// row outcomes.
type RowResult struct {
	RowNumber       int      `json:"rowNumber"`
	Identifier      string   `json:"identifier"`
	Success         bool     `json:"success"`
	Skipped         bool     `json:"skipped,omitempty"`
	Message         string   `json:"message"`
	UserID          string   `json:"userId,omitempty"`
	GrantIDs        []string `json:"grantIds,omitempty"`
	AssignmentCodes []string `json:"assignmentCodes,omitempty"`
}

// BulkImportSummary aggregates a batch. processed == len(results) and
// imported + skipped + failed == processed always hold.
type BulkImportSummary struct {
	BatchID   string      `json:"batchId"`
	Processed int         `json:"processed"`
	Imported  int         `json:"imported"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Results   []RowResult `json:"results"`
}

// Expected header columns, matched case-insensitively.
var importColumns = []string{"username", "email", "firstname", "lastname", "phonenumber", "roles"}

const importFacilityColumn = "facilityid"

// ImportAssignments parses tabular input with a header row and processes
// every data row in isolation: resolve or create the user, resolve the
// roles, create one grant per role and materialize its permissions. A
// malformed row becomes a failure entry; only an unusable header fails the
// batch. Rows already committed stay committed when a later row fails.
func (s *Service) ImportAssignments(ctx context.Context, tc TenantContext, in BulkImportInput) (BulkImportSummary, error) {
	if strings.TrimSpace(in.CSVContent) == "" {
		return BulkImportSummary{}, newValidationError([]string{"csv content is required"})
	}
	reader := csv.NewReader(strings.NewReader(in.CSVContent))
	if in.Delimiter != 0 {
		reader.Comma = in.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return BulkImportSummary{}, newValidationError([]string{"unparseable header row"})
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range importColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, "missing column "+name)
		}
	}
	if len(missing) > 0 {
		return BulkImportSummary{}, newValidationError(missing)
	}

	summary := BulkImportSummary{BatchID: uuid.NewString(), Results: []RowResult{}}
	rowNumber := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNumber++
		if err != nil {
			// the reader resumes at the next record, so a malformed row
			// never takes the rest of the batch down with it
			summary.Results = append(summary.Results, RowResult{
				RowNumber: rowNumber,
				Success:   false,
				Message:   "unparseable row: " + err.Error(),
			})
			summary.Failed++
			summary.Processed++
			obs.CountBulkRow("failed")
			continue
		}
		result := s.importRow(ctx, tc, in, cols, len(header), rowNumber, record)
		summary.Results = append(summary.Results, result)
		summary.Processed++
		switch {
		case result.Success:
			summary.Imported++
			obs.CountBulkRow("created")
		case result.Skipped:
			summary.Skipped++
			obs.CountBulkRow("skipped")
		default:
			summary.Failed++
			obs.CountBulkRow("failed")
		}
	}
	return summary, nil
}

func (s *Service) importRow(ctx context.Context, tc TenantContext, in BulkImportInput, cols map[string]int, headerWidth, rowNumber int, record []string) RowResult {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	username := field("username")
	email := field("email")
	result := RowResult{RowNumber: rowNumber, Identifier: username}
	if result.Identifier == "" {
		result.Identifier = email
	}

	if len(record) != headerWidth {
		result.Message = fmt.Sprintf("expected %d columns, got %d", headerWidth, len(record))
		return result
	}
	if username == "" && email == "" {
		result.Message = "username or email is required"
		return result
	}
	roleCodes := splitRoleList(field("roles"))
	if len(roleCodes) == 0 {
		result.Message = "at least one role is required"
		return result
	}

	user, createdUser, err := s.resolveOrCreateUser(ctx, username, email, field("firstname"), field("lastname"), field("phonenumber"))
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.UserID = user.ID

	facilityID := field(importFacilityColumn)
	if facilityID == "" {
		facilityID = in.DefaultFacilityID
	}

	var (
		created   int
		conflicts int
		failures  []string
	)
	for _, code := range roleCodes {
		role, err := s.resolveOrCreateRole(ctx, code)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		grant, err := s.assignResolved(ctx, tc, user, role, facilityID)
		switch {
		case errors.Is(err, ErrConflict):
			conflicts++
		case err != nil:
			failures = append(failures, err.Error())
		default:
			created++
			result.GrantIDs = append(result.GrantIDs, grant.ID)
			result.AssignmentCodes = append(result.AssignmentCodes, grant.Code)
		}
	}

	if createdUser && in.SendInviteEmails {
		if err := s.notifier.InviteUser(ctx, user.ID, in.ForcePasswordChange); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "invite email failed",
				"user":  user.ID,
				"error": err.Error(),
			})
		}
	}

	switch {
	case len(failures) > 0:
		result.Message = strings.Join(failures, "; ")
	case created > 0:
		result.Success = true
		result.Message = fmt.Sprintf("created %d assignment(s)", created)
	case conflicts > 0:
		result.Skipped = true
		result.Message = "already assigned"
	default:
		result.Message = "no assignments created"
	}
	return result
}

func (s *Service) resolveOrCreateUser(ctx context.Context, username, email, firstName, lastName, phone string) (User, bool, error) {
	lookup := username
	if lookup == "" {
		lookup = email
	}
	user, err := s.dir.FindUserByUsername(ctx, lookup)
	if err == nil {
		if user.Deleted || !user.Active {
			return User{}, false, fmt.Errorf("%w: user %s is not active", ErrInvalidInput, lookup)
		}
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}
	user = User{
		ID:        ids.New(),
		Username:  lookup,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.dir.CreateUser(ctx, &user); err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

// resolveOrCreateRole creates catalog roles lazily; a code absent from the
// catalog is rejected rather than created.
func (s *Service) resolveOrCreateRole(ctx context.Context, code string) (Role, error) {
	role, err := s.dir.FindRoleByCode(ctx, code)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	if !s.catalog.KnownRole(code) {
		return Role{}, fmt.Errorf("%w: unknown role code %s", ErrInvalidInput, code)
	}
	role = Role{
		ID:        ids.New(),
		Code:      code,
		Name:      roleDisplayName(code),
		CreatedAt: s.now().UTC(),
	}
	if err := s.dir.CreateRole(ctx, &role); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.dir.FindRoleByCode(ctx, code)
		}
		return Role{}, err
	}
	return role, nil
}

func splitRoleList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ';' })
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func roleDisplayName(code string) string {
	words := strings.Split(strings.ToLower(StripRolePrefix(code)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
