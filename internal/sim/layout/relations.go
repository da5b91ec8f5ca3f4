package layout

// Relations answers friendliness between owners from the faction table. Owners are
// friendly to themselves, to members of their own faction, and to members of allied
// factions. Alliances are symmetric.
type Relations struct {
	factionOf map[string]string
	allied    map[[2]string]bool
}

func NewRelations(factions []FactionSpec) *Relations {
	r := &Relations{factionOf: map[string]string{}, allied: map[[2]string]bool{}}
	for _, f := range factions {
		for _, m := range f.Members {
			r.factionOf[m] = f.ID
		}
		for _, a := range f.Allies {
			r.allied[[2]string{f.ID, a}] = true
			r.allied[[2]string{a, f.ID}] = true
		}
	}
	return r
}

func (r *Relations) IsFriendly(stationOwner, scannerOwner string) bool {
	if stationOwner == scannerOwner {
		return true
	}
	a, okA := r.factionOf[stationOwner]
	b, okB := r.factionOf[scannerOwner]
	if !okA || !okB {
		return false
	}
	return a == b || r.allied[[2]string{a, b}]
}
