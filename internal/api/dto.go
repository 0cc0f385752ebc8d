package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type createOrgRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type rosterMemberRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=student trainer"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

type rosterImportRequest struct {
	Members []rosterMemberRequest `json:"members" validate:"required,min=1,dive"`
}

type startDirectRequest struct {
	TargetID string `json:"target_id" validate:"required"`
}

type createGroupRequest struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// decode unmarshals and validates a request body. A false return means the
// error response has already been written.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body", "bad_json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
		return false
	}
	return true
}
