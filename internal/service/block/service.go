// Package block 实现用户拉黑关系的业务逻辑
package block

import (
	"go.uber.org/zap"

	"linguachat/internal/dao/mysql/repository"
	"linguachat/internal/dto/respond"
	"linguachat/internal/model"
	"linguachat/pkg/errorx"
)

// blockService 拉黑业务实现
type blockService struct {
	repos *repository.Repositories
}

// NewBlockService 构造函数
func NewBlockService(repos *repository.Repositories) *blockService {
	return &blockService{repos: repos}
}

// Check 查询两人之间的双向拉黑状态
// 两个方向可能同时生效；上层按"我拉黑了对方"优先处理
func (b *blockService) Check(selfId, otherId string) (*respond.BlockStatus, error) {
	if selfId == "" || otherId == "" {
		return nil, errorx.ErrInvalidParam
	}
	blocks, err := b.repos.Block.FindActiveBetween(selfId, otherId)
	if err != nil {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	status := &respond.BlockStatus{}
	for i := range blocks {
		if blocks[i].BlockerId == selfId {
			status.BlockedBySelf = true
		} else {
			status.BlockedByOther = true
		}
	}
	return status, nil
}

// Block 拉黑用户，已生效时幂等返回
func (b *blockService) Block(blockerId, blockedId string) error {
	if blockerId == "" || blockedId == "" || blockerId == blockedId {
		return errorx.ErrInvalidParam
	}
	blocks, err := b.repos.Block.FindActiveBetween(blockerId, blockedId)
	if err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	for i := range blocks {
		if blocks[i].BlockerId == blockerId {
			return nil // 已拉黑
		}
	}
	if err := b.repos.Block.Create(&model.UserBlock{
		BlockerId: blockerId,
		BlockedId: blockedId,
	}); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	return nil
}

// Unblock 解除拉黑
// 不删行而是写入解除时间，保留拉黑历史用于审计
func (b *blockService) Unblock(blockerId, blockedId string) error {
	if blockerId == "" || blockedId == "" {
		return errorx.ErrInvalidParam
	}
	if err := b.repos.Block.End(blockerId, blockedId); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	return nil
}
