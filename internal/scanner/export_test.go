package scanner

import "syncabull/internal/retry"

func (s *Scanner) SetPolicy(policy retry.Policy) {
	s.policy = policy
}
