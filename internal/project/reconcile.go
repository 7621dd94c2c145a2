package project

// reconcileResult is the outcome of comparing configured model entries
// against the files actually present in a bucket directory.
type reconcileResult struct {
	// ToAdd are filenames present on disk with no config entry; an entry
	// must be synthesized for each.
	ToAdd []string
	// ToRemove are config entries whose backing file is gone.
	ToRemove []ModelEntry
}

// Changed reports whether applying the result would mutate the config.
func (r reconcileResult) Changed() bool {
	return len(r.ToAdd) > 0 || len(r.ToRemove) > 0
}

// reconcile computes the pure diff between the configured entries of one
// source bucket and the filenames present in that bucket's directory. It
// performs no I/O, so the policy is testable without a filesystem; callers
// apply the result and persist once, batched.
func reconcile(configured []ModelEntry, present []string) reconcileResult {
	onDisk := make(map[string]bool, len(present))
	for _, f := range present {
		onDisk[f] = true
	}

	inConfig := make(map[string]bool, len(configured))
	var result reconcileResult
	for _, e := range configured {
		inConfig[e.Filename] = true
		if !onDisk[e.Filename] {
			result.ToRemove = append(result.ToRemove, e)
		}
	}
	for _, f := range present {
		if !inConfig[f] {
			result.ToAdd = append(result.ToAdd, f)
		}
	}
	return result
}
