package rules

import (
	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/matcher"
	"go.sunsetglow.net/rose/internal/model"
)

var artistRoles = []artist.Role{
	artist.Main, artist.Guest, artist.Remixer, artist.Composer,
	artist.Conductor, artist.Producer, artist.DJMixer,
}

func mappingNames(m *artist.Mapping) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, role := range artistRoles {
		for _, a := range m.Artists(role) {
			if !a.Alias {
				out = append(out, a.Name)
			}
		}
	}
	return out
}

// tagFieldValues extracts t's value(s) from a freshly read AudioTags, used
// for disk re-verification (step 4) and post-action diffing (step 7).
// newFlag is nil when the rule touches no "new"-related tag.
func tagFieldValues(tags *model.AudioTags, newFlag *bool, t matcher.Tag) []string {
	switch t {
	case matcher.TrackTitle:
		return []string{tags.TrackTitle}
	case matcher.ReleaseTitle:
		return []string{tags.ReleaseTitle}
	case matcher.TrackNumber:
		return []string{tags.TrackNumber}
	case matcher.DiscNumber:
		return []string{tags.DiscNumber}
	case matcher.ReleaseDate:
		return []string{tags.ReleaseDate.Format()}
	case matcher.OriginalDate:
		return []string{tags.OriginalDate.Format()}
	case matcher.CompositionDate:
		return []string{tags.CompositionDate.Format()}
	case matcher.ReleaseType:
		return []string{tags.ReleaseType}
	case matcher.CatalogNumber:
		return []string{tags.CatalogNumber}
	case matcher.Edition:
		return []string{tags.Edition}
	case matcher.Genre:
		return tags.Genres
	case matcher.SecondaryGenre:
		return tags.SecondaryGenres
	case matcher.Descriptor:
		return tags.Descriptors
	case matcher.Label:
		return tags.Labels
	case matcher.TrackArtist:
		return mappingNames(tags.TrackArtists)
	case matcher.ReleaseArtist:
		return mappingNames(tags.ReleaseArtists)
	case matcher.New:
		if newFlag == nil {
			return nil
		}
		if *newFlag {
			return []string{"true"}
		}
		return []string{"false"}
	}
	return nil
}

// cachedFieldValues extracts t's value(s) from the cache's own flattened
// Release/Track views, used by the in-memory pre-filter (step 3) to avoid
// a disk read for candidates that plainly cannot match.
func cachedFieldValues(rel *model.Release, tr *model.Track, t matcher.Tag) []string {
	switch t {
	case matcher.TrackTitle:
		return []string{tr.Title}
	case matcher.ReleaseTitle:
		return []string{rel.Title}
	case matcher.TrackNumber:
		return []string{tr.TrackNumber}
	case matcher.DiscNumber:
		return []string{tr.DiscNumber}
	case matcher.ReleaseDate:
		return []string{rel.ReleaseDate}
	case matcher.OriginalDate:
		return []string{rel.OriginalDate}
	case matcher.CompositionDate:
		return []string{rel.CompositionDate}
	case matcher.ReleaseType:
		return []string{rel.ReleaseType}
	case matcher.CatalogNumber:
		return []string{rel.CatalogNumber}
	case matcher.Edition:
		return []string{rel.Edition}
	case matcher.Genre:
		return rel.Genres
	case matcher.SecondaryGenre:
		return rel.SecondaryGenres
	case matcher.Descriptor:
		return rel.Descriptors
	case matcher.Label:
		return rel.Labels
	case matcher.TrackArtist:
		return tr.Artists.AllNames()
	case matcher.ReleaseArtist:
		return rel.Artists.AllNames()
	case matcher.New:
		if rel.New {
			return []string{"true"}
		}
		return []string{"false"}
	}
	return nil
}
