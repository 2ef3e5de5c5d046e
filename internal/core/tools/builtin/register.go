package builtin

import "github.com/haasonsaas/nexus/internal/core/tools"

// RegisterAll registers the full builtin tool roster into r. This is
// the default tool set a harness run starts with before any
// host-supplied tools are added.
func RegisterAll(r *tools.Registry) {
	r.Register(ReadFileTool{})
	r.Register(WriteFileTool{})
	r.Register(EditFileTool{})
	r.Register(ListDirectoryTool{})
	r.Register(SearchFilesTool{})
	r.Register(ShellTool{})
	r.Register(GitStatusTool{})
	r.Register(GitDiffTool{})
	r.Register(GitLogTool{})
	r.Register(GitCommitTool{})
	r.Register(GitBranchTool{})
}
