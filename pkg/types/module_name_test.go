// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestSanitizeModuleName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want ModuleName
	}{
		{in: "widget", want: "widget"},
		{in: "my-service-phase-3", want: "my-service-phase-3"},
		{in: "  Admin Panel v2 ", want: "Admin-Panel-v2"},
		{in: "../../etc/passwd", want: "etc-passwd"},
		{in: "@scope/pkg", want: "scope-pkg"},
		{in: "...", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeModuleName(tt.in); got != tt.want {
				t.Errorf("SanitizeModuleName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestModuleNameIsValid(t *testing.T) {
	t.Parallel()

	for _, bad := range []ModuleName{"", "  ", ".", "..", "a/b", `a\b`} {
		valid, errs := bad.IsValid()
		if valid {
			t.Errorf("ModuleName(%q).IsValid() = true, want false", bad)
			continue
		}
		if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidModuleName) {
			t.Errorf("ModuleName(%q).IsValid() errors = %v, want ErrInvalidModuleName", bad, errs)
		}
	}

	if valid, _ := ModuleName("widget").IsValid(); !valid {
		t.Error(`ModuleName("widget").IsValid() = false`)
	}
}
