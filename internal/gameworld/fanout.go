package gameworld

// FanOut merges callback sets so one world connection can feed several
// consumers. Every non-nil func in every set is invoked, in order.
func FanOut(sets ...Callbacks) Callbacks {
	return Callbacks{
		EntityMoved: func(update EntityUpdate) {
			for _, cb := range sets {
				if cb.EntityMoved != nil {
					cb.EntityMoved(update)
				}
			}
		},
		EntityAppeared: func(ref EntityRef) {
			for _, cb := range sets {
				if cb.EntityAppeared != nil {
					cb.EntityAppeared(ref)
				}
			}
		},
		ArmSwing: func(ref EntityRef) {
			for _, cb := range sets {
				if cb.ArmSwing != nil {
					cb.ArmSwing(ref)
				}
			}
		},
		SneakToggle: func(ref EntityRef, sneaking bool) {
			for _, cb := range sets {
				if cb.SneakToggle != nil {
					cb.SneakToggle(ref, sneaking)
				}
			}
		},
		HealthChanged: func(vitals Vitals) {
			for _, cb := range sets {
				if cb.HealthChanged != nil {
					cb.HealthChanged(vitals)
				}
			}
		},
		Sound: func(sound Sound) {
			for _, cb := range sets {
				if cb.Sound != nil {
					cb.Sound(sound)
				}
			}
		},
		ItemCollected: func(ref EntityRef, item string) {
			for _, cb := range sets {
				if cb.ItemCollected != nil {
					cb.ItemCollected(ref, item)
				}
			}
		},
		Chat: func(chat Chat) {
			for _, cb := range sets {
				if cb.Chat != nil {
					cb.Chat(chat)
				}
			}
		},
		System: func(message string) {
			for _, cb := range sets {
				if cb.System != nil {
					cb.System(message)
				}
			}
		},
	}
}
