package video

import "github.com/hitoshi/bourbonbuddy/internal/model"

// transitions は許可される状態遷移。同一状態への遷移は常に許可する。
var transitions = map[model.VideoStatus][]model.VideoStatus{
	model.VideoStatusUploading:   {model.VideoStatusProcessing, model.VideoStatusError, model.VideoStatusNeedsUpload},
	model.VideoStatusProcessing:  {model.VideoStatusReady, model.VideoStatusError},
	model.VideoStatusNeedsUpload: {model.VideoStatusUploading},
	model.VideoStatusError:       {model.VideoStatusUploading},
}

// CanTransition はfromからtoへの遷移が許可されているかを返す。
func CanTransition(from, to model.VideoStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// canReach は照合時の遷移判定。
// 照合の間隔中にprocessingを経由した場合も到達可能とみなす。
func canReach(from, to model.VideoStatus) bool {
	if CanTransition(from, to) {
		return true
	}
	return CanTransition(from, model.VideoStatusProcessing) && CanTransition(model.VideoStatusProcessing, to)
}
