package sqlstore

import (
	"fmt"

	"github.com/coopportal/coopsearch/pkg/gateway"
)

// Schema lists the tables and columns the store may query
type Schema map[string][]string

// DefaultSchema returns the portal tables the search engine reads
func DefaultSchema() Schema {
	return Schema{
		"cooperatives": {
			"id", "name", "registration_number", "tenant_id", "status", "cooperative_type", "created_at",
		},
		"cooperative_members": {
			"id", "user_id", "cooperative_id", "member_role", "created_at",
		},
		"cooperative_applications": {
			"id", "proposed_name", "application_number", "status", "tenant_id", "cooperative_id", "applicant_id", "created_at",
		},
		"profiles": {
			"id", "full_name", "email", "phone", "id_number", "tenant_id", "role", "created_at",
		},
		"complaints": {
			"id", "complaint_number", "subject", "status", "priority", "cooperative_id", "complainant_id", "created_at",
		},
		"amendment_requests": {
			"id", "request_number", "amendment_type", "status", "cooperative_id", "created_at",
		},
		"auditors": {
			"id", "full_name", "certifying_body", "certification_number", "email", "status",
		},
		"trainers": {
			"id", "full_name", "institution", "specialization", "email", "status",
		},
		"official_searches": {
			"id", "search_number", "requester_name", "purpose", "status", "user_id", "cooperative_id", "created_at",
		},
	}
}

// check verifies every identifier in q against the schema
func (s Schema) check(q gateway.Query) error {
	cols, ok := s[q.Table]
	if !ok {
		return fmt.Errorf("%w: %s", gateway.ErrUnknownTable, q.Table)
	}

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	column := func(c string) error {
		if !known[c] {
			return fmt.Errorf("%w: %s.%s", gateway.ErrUnknownColumn, q.Table, c)
		}
		return nil
	}

	for _, c := range q.Columns {
		if err := column(c); err != nil {
			return err
		}
	}
	if q.Match != nil {
		for _, f := range q.Match.Fields {
			if err := column(f); err != nil {
				return err
			}
		}
	}
	for _, f := range q.Filters {
		if err := column(f.Column); err != nil {
			return err
		}
		if f.Sub != nil {
			if err := s.check(*f.Sub); err != nil {
				return err
			}
		}
	}
	return nil
}
