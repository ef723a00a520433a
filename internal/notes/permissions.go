package notes

import "github.com/questlog/questlog/internal/tables"

// Access is the resolved pair of rights a user holds on a note.
type Access struct {
	CanView bool
	CanEdit bool
}

// Resolve computes the effective rights for a note. Evaluation order, first
// match wins:
//
//  1. the author holds full rights;
//  2. non-members hold none;
//  3. DMs hold full rights;
//  4. an explicit grant applies, with edit clamped to view;
//  5. otherwise the membership's table-wide note default applies to both.
//
// membership is nil for non-members; grant is nil when no explicit permission
// row exists for (note, user).
func Resolve(note *Note, userID uint, membership *tables.Membership, grant *Permission) Access {
	if note.AuthorID == userID {
		return Access{CanView: true, CanEdit: true}
	}
	if membership == nil {
		return Access{}
	}
	if membership.IsDM() {
		return Access{CanView: true, CanEdit: true}
	}
	if grant != nil {
		return Access{
			CanView: grant.CanView,
			CanEdit: grant.CanEdit && grant.CanView,
		}
	}
	return Access{
		CanView: membership.CanViewNotes,
		CanEdit: membership.CanViewNotes,
	}
}
