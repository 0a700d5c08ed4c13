package services

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func testUser(defaultLoad, overallLoad int) *types.User {
	return &types.User{
		ID:          uuid.New(),
		DefaultLoad: defaultLoad,
		OverallLoad: overallLoad,
	}
}
