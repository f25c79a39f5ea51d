package tileset

// Statistics are counters for one pass. Load-related counters persist
// across passes and frames; the rest are cleared before each pass.
type Statistics struct {
	Selected                             int `json:"selected"`
	Visited                              int `json:"visited"`
	NumberOfCommands                     int `json:"numberOfCommands"`
	NumberOfAttemptedRequests            int `json:"numberOfAttemptedRequests"`
	NumberOfTilesStyled                  int `json:"numberOfTilesStyled"`
	NumberOfTilesCulledWithChildrenUnion int `json:"numberOfTilesCulledWithChildrenUnion"`

	NumberOfPendingRequests       int   `json:"numberOfPendingRequests"`
	NumberOfTilesProcessing       int   `json:"numberOfTilesProcessing"`
	NumberOfTilesWithContentReady int   `json:"numberOfTilesWithContentReady"`
	NumberOfTilesTotal            int   `json:"numberOfTilesTotal"`
	NumberOfLoadedTilesTotal      int   `json:"numberOfLoadedTilesTotal"`
	NumberOfTilesFailed           int   `json:"numberOfTilesFailed"`
	NumberOfTilesEvicted          int   `json:"numberOfTilesEvicted"`
	ResidentBytes                 int64 `json:"residentBytes"`
}

func (s *Statistics) clear() {
	s.Selected = 0
	s.Visited = 0
	s.NumberOfCommands = 0
	s.NumberOfAttemptedRequests = 0
	s.NumberOfTilesStyled = 0
	s.NumberOfTilesCulledWithChildrenUnion = 0
}

func (s *Statistics) incrementLoadCounts(c Content) {
	s.NumberOfTilesWithContentReady++
	s.ResidentBytes += c.ByteLength()
}

func (s *Statistics) decrementLoadCounts(c Content) {
	s.NumberOfTilesWithContentReady--
	s.ResidentBytes -= c.ByteLength()
}
