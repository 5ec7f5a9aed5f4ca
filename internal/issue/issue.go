// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

const (
	ConfigLoadFailedId Id = iota + 1
	ArchiveNotFoundId
	ExtractionFailedId
	ClassificationAmbiguousId
	InstallFailedId
	RegistryWriteFailedId
	TaskTimeoutId
	ModuleNotFoundId
	PermissionDeniedId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is Markdown rendered for the terminal.
	MarkdownMsg string

	// HttpLink is a documentation link shown under "See also".
	HttpLink string

	// Issue is a catalog entry with remediation guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the entry with the named glamour style ("dark", "light",
// "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

ingest could not read or validate its configuration file.

## Configuration file locations
- Linux: ~/.config/ingest/config.cue
- macOS: ~/Library/Application Support/ingest/config.cue
- Windows: %APPDATA%\ingest\config.cue
- ./config.cue in the current directory

## Things you can try
- Write a default configuration and edit it:
~~~
$ ingest config init
~~~
- Print the effective configuration:
~~~
$ ingest config show
~~~
- Check category names: admin, service, system, ai, agent, config, contract, script, test, doc`,
	}

	archiveNotFoundIssue = &Issue{
		id: ArchiveNotFoundId,
		mdMsg: `
# Archive not found!

The archive path given to 'ingest install' does not exist or is not a regular file.

## Things you can try
- Check the path and file name
- List what is waiting in the intake directories:
~~~
$ ingest run-once --dry-run
~~~`,
	}

	extractionFailedIssue = &Issue{
		id: ExtractionFailedId,
		mdMsg: `
# Archive could not be extracted!

The archive is corrupt, truncated, not a ZIP file, or contains entries that
would escape the extraction directory. It was left in place untouched.

## Things you can try
- Re-create the archive and copy it into the intake directory again
- Test it locally:
~~~
$ unzip -t <archive>.zip
~~~`,
	}

	classificationAmbiguousIssue = &Issue{
		id: ClassificationAmbiguousId,
		mdMsg: `
# Module category could not be determined!

No classification rule matched, so nothing was installed. The archive is still
in the intake directory.

## Things you can try
- Add a manifest (module.json, module.yaml or module.cue) with a **type** field
- Install it with an explicit category:
~~~
$ ingest install <archive>.zip --category=service
~~~`,
	}

	installFailedIssue = &Issue{
		id: InstallFailedId,
		mdMsg: `
# Module installation failed!

Copying the module into its category directory failed. The staged copy was
removed and the existing module directory was not modified.

## Things you can try
- Check free disk space and permissions on the project directories
- Retry the archive with 'ingest install <archive>.zip'`,
	}

	registryWriteFailedIssue = &Issue{
		id: RegistryWriteFailedId,
		mdMsg: `
# Module registry was not updated!

The module files are installed, but its registry record could not be written.

## Things you can try
- Check that the registry file or database is writable
- Re-run 'ingest install' for the archive; installation is idempotent`,
	}

	taskTimeoutIssue = &Issue{
		id: TaskTimeoutId,
		mdMsg: `
# Archive processing timed out!

The task exceeded **pipeline.task_timeout**. The archive was left in place.

## Things you can try
- Raise the timeout in the configuration:
~~~cue
pipeline: {
	task_timeout: "10m"
}
~~~`,
	}

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found in the registry!

## Things you can try
- List installed modules:
~~~
$ ingest registry list
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

ingest could not write to one of its directories.

## Things you can try
- Check ownership of the project root, the processed directory and the scratch directory
- Run ingest as the user that owns the project tree`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		archiveNotFoundIssue.Id():         archiveNotFoundIssue,
		extractionFailedIssue.Id():        extractionFailedIssue,
		classificationAmbiguousIssue.Id(): classificationAmbiguousIssue,
		installFailedIssue.Id():           installFailedIssue,
		registryWriteFailedIssue.Id():     registryWriteFailedIssue,
		taskTimeoutIssue.Id():             taskTimeoutIssue,
		moduleNotFoundIssue.Id():          moduleNotFoundIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

// Values returns all catalog entries sorted by Id.
func Values() []*Issue {
	vals := make([]*Issue, 0, len(issues))
	for _, v := range issues {
		vals = append(vals, v)
	}
	slices.SortFunc(vals, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return vals
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
