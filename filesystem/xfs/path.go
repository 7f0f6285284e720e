package xfs

import "strings"

// maxSymlinkDepth bounds symlink-following during path resolution, per
// spec.md §4.8's resolution of the loop-detection open question: a fixed
// recursion budget rather than a visited-inode set, matching common
// VFS-layer practice.
const maxSymlinkDepth = 40

// resolvePath walks a '/'-separated UTF-8 path from the volume root,
// following symlinks for every component except the last, per spec.md
// §4.8. It returns (nil, nil) when any component along the way does not
// exist, never an error, matching GetSubEntryByUTF8Name's NotFound
// convention.
func (v *Volume) resolvePath(path string) (*FileEntry, error) {
	return v.resolvePathAt(path, 0)
}

// resolvePathAt is resolvePath with the number of symlinks already followed
// on the way here, so that a symlink whose target passes through another
// symlink still counts against maxSymlinkDepth.
func (v *Volume) resolvePathAt(path string, depth int) (*FileEntry, error) {
	root, err := v.RootDirectory()
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	components := splitPathComponents(path)
	if len(components) == 0 {
		return root, nil
	}

	current := root
	for i, name := range components {
		if err := v.ctx.abort.checkAborted(); err != nil {
			return nil, err
		}

		next, err := current.GetSubEntryByUTF8Name(name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}

		isLast := i == len(components)-1
		if !isLast && next.in.fileType == FileTypeSymlink {
			resolved, err := v.followSymlink(next, depth)
			if err != nil {
				return nil, err
			}
			if resolved == nil {
				return nil, nil
			}
			next = resolved
		}

		current = next
	}
	return current, nil
}

// followSymlink dereferences a symlink entry to whatever it ultimately
// points at, bounded by maxSymlinkDepth, per spec.md §4.8. Every target,
// absolute or relative, is resolved from the volume root: FileEntry does
// not record its containing directory, so a relative target is not
// resolved against the directory that holds the symlink.
func (v *Volume) followSymlink(entry *FileEntry, depth int) (*FileEntry, error) {
	if depth >= maxSymlinkDepth {
		return nil, &SymlinkLoopError{depth: depth}
	}
	target, err := entry.GetSymlinkTarget()
	if err != nil {
		return nil, err
	}

	resolved, err := v.resolvePathAt(target, depth+1)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, nil
	}
	if resolved.in.fileType == FileTypeSymlink {
		return v.followSymlink(resolved, depth+1)
	}
	return resolved, nil
}

func splitPathComponents(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}
