package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "editor write", role: RoleEditor, action: ActionWrite, allow: true},
		{name: "editor admin", role: RoleEditor, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("owner"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	if role, err := ParseRole("EDITOR"); err != nil || role != RoleEditor {
		t.Fatalf("ParseRole(EDITOR) = %v, %v", role, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected ParseRole to reject unknown role")
	}
}

func TestCanManagePlan(t *testing.T) {
	owner := Actor{ID: 7, Role: RoleEditor, Active: true}
	cases := []struct {
		name    string
		actor   Actor
		ownerID int64
		allow   bool
	}{
		{name: "viewer denied", actor: Actor{ID: 3, Role: RoleViewer, Active: true}, ownerID: 7, allow: false},
		{name: "editor non-owner denied", actor: Actor{ID: 4, Role: RoleEditor, Active: true}, ownerID: 7, allow: false},
		{name: "owner editor allowed", actor: owner, ownerID: 7, allow: true},
		{name: "admin allowed", actor: Actor{ID: 1, Role: RoleAdmin, Active: true}, ownerID: 7, allow: true},
		{name: "inactive owner denied", actor: Actor{ID: 7, Role: RoleEditor, Active: false}, ownerID: 7, allow: false},
		{name: "owner viewer allowed", actor: Actor{ID: 7, Role: RoleViewer, Active: true}, ownerID: 7, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanManagePlan(tc.actor, tc.ownerID); got != tc.allow {
				t.Fatalf("CanManagePlan(%+v, %d) = %v, want %v", tc.actor, tc.ownerID, got, tc.allow)
			}
		})
	}
}

func TestCanDeleteActivity(t *testing.T) {
	if CanDeleteActivity(Actor{ID: 7, Role: RoleEditor, Active: true}) {
		t.Fatal("owner editor must not delete activities")
	}
	if !CanDeleteActivity(Actor{ID: 1, Role: RoleAdmin, Active: true}) {
		t.Fatal("admin must delete activities")
	}
}

func TestAdminSelfGuards(t *testing.T) {
	admin := Actor{ID: 1, Role: RoleAdmin, Active: true}

	if CanChangeRole(admin, admin.ID, RoleEditor) {
		t.Fatal("admin must not strip their own admin role")
	}
	if !CanChangeRole(admin, admin.ID, RoleAdmin) {
		t.Fatal("reasserting own admin role is allowed")
	}
	if !CanChangeRole(admin, 2, RoleViewer) {
		t.Fatal("admin must change other users' roles")
	}
	if CanChangeRole(Actor{ID: 2, Role: RoleEditor, Active: true}, 3, RoleViewer) {
		t.Fatal("non-admin must not change roles")
	}

	if CanSetActive(admin, admin.ID, false) {
		t.Fatal("admin must not deactivate themselves")
	}
	if !CanSetActive(admin, 2, false) {
		t.Fatal("admin must deactivate other users")
	}

	if CanDeleteUser(admin, admin.ID) {
		t.Fatal("admin must not delete their own account")
	}
	if !CanDeleteUser(admin, 2) {
		t.Fatal("admin must delete other accounts")
	}
	if !CanDeleteUser(Actor{ID: 2, Role: RoleViewer, Active: true}, 2) {
		t.Fatal("viewer must delete their own account")
	}
	if CanDeleteUser(Actor{ID: 2, Role: RoleViewer, Active: true}, 3) {
		t.Fatal("viewer must not delete other accounts")
	}
}

func TestPasswordRules(t *testing.T) {
	admin := Actor{ID: 1, Role: RoleAdmin, Active: true}
	editor := Actor{ID: 2, Role: RoleEditor, Active: true}

	if !CanChangePassword(admin, 2) {
		t.Fatal("admin changes any password")
	}
	if CanChangePassword(editor, 3) {
		t.Fatal("editor must not change another user's password")
	}
	if !CanChangePassword(editor, 2) {
		t.Fatal("editor changes own password")
	}

	if NeedsOldPassword(admin, 2) {
		t.Fatal("admin resetting another account needs no proof")
	}
	if !NeedsOldPassword(admin, 1) {
		t.Fatal("admin changing their own password still proves the old one")
	}
	if !NeedsOldPassword(editor, 2) {
		t.Fatal("editor proves the old password")
	}
}
