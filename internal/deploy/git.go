package deploy

import (
	git "github.com/go-git/go-git/v5"
)

// Head is the checked-out branch and commit of a repository.
type Head struct {
	Branch string
	SHA    string
}

// DetectHead opens the repository containing dir. ok is false when dir is not
// inside a repository or HEAD cannot be resolved (e.g. no commits yet).
func DetectHead(dir string) (Head, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Head{}, false
	}
	ref, err := repo.Head()
	if err != nil {
		return Head{}, false
	}
	head := Head{SHA: ref.Hash().String()}
	// Detached HEAD reports "HEAD"; leave the branch empty in that case
	if ref.Name().IsBranch() {
		head.Branch = ref.Name().Short()
	}
	return head, true
}
