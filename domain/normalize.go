package domain

// Normalize attaches chore definitions and member profiles to the given
// instances. Lookups are built per call. A key without a match keeps any join
// the backend already returned and is otherwise left unset; no instance is
// dropped. The input slice is not modified.
func Normalize(instances []ChoreInstance, chores []Chore, profiles []Profile) []ChoreInstance {
	choreByID := make(map[string]*Chore, len(chores))
	for i := range chores {
		choreByID[chores[i].ID] = &chores[i]
	}
	profileByID := make(map[string]*Profile, len(profiles))
	for i := range profiles {
		profileByID[profiles[i].ID] = &profiles[i]
	}

	out := make([]ChoreInstance, len(instances))
	for i, inst := range instances {
		if c, ok := choreByID[inst.ChoreID]; ok && inst.ChoreID != "" {
			cp := *c
			inst.Chore = &cp
		}
		if p, ok := profileByID[inst.AssignedTo]; ok && inst.AssignedTo != "" {
			cp := *p
			inst.AssignedUser = &cp
		}
		if inst.CompletedBy != nil {
			if p, ok := profileByID[*inst.CompletedBy]; ok {
				cp := *p
				inst.CompletedUser = &cp
			}
		}
		out[i] = inst
	}
	return out
}

// FilterByAssignee keeps the instances assigned to userID. An empty userID
// keeps everything.
func FilterByAssignee(instances []ChoreInstance, userID string) []ChoreInstance {
	if userID == "" {
		return instances
	}
	out := make([]ChoreInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.AssignedTo == userID {
			out = append(out, inst)
		}
	}
	return out
}
