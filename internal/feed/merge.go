package feed

import "github.com/murmurhq/murmur/internal/models"

// Merge returns the visible feed: the live first page as pushed by the store, followed by
// the paginated tail minus anything the live page already shows.
func Merge(live, tail []*models.Post) []*models.Post {
	out := make([]*models.Post, 0, len(live)+len(tail))
	seen := make(map[string]bool, len(live)+len(tail))
	for _, list := range [][]*models.Post{live, tail} {
		for _, p := range list {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}

// AppendPage appends page to acc, dropping posts whose ID acc already holds
func AppendPage(acc, page []*models.Post) []*models.Post {
	seen := make(map[string]bool, len(acc)+len(page))
	for _, p := range acc {
		seen[p.ID] = true
	}
	out := append(make([]*models.Post, 0, len(acc)+len(page)), acc...)
	for _, p := range page {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func indexOf(list []*models.Post, id string) int {
	for i, p := range list {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func without(list []*models.Post, id string) []*models.Post {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}
	return append(list[:i:i], list[i+1:]...)
}
