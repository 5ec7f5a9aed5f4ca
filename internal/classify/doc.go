// SPDX-License-Identifier: MPL-2.0

// Package classify decides the category of an extracted module by evaluating
// an ordered list of rules. The first rule that matches decides; there is no
// scoring. When nothing matches the module is ambiguous and is not installed.
//
// Rule order: the manifest's declared type, the keyword table applied to the
// archive name and top-level entries, the package dependency tables, and
// finally content signals found in the module's files.
package classify
